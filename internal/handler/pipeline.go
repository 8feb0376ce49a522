package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"onisai/internal/domain"
	internalRedis "onisai/internal/redis"
	"onisai/internal/service"
)

const maxOfferBody = 64 << 10

// Pipeline is the set of pipeline operations exposed over HTTP.
type Pipeline interface {
	SubmitOffer(ctx context.Context, text string, at time.Time) (*service.Result, error)
	SubmitStructuredOffer(ctx context.Context, offer domain.Offer, at time.Time) (*service.Result, error)
	Accept(ctx context.Context, at time.Time) (*service.Result, error)
	Complete(ctx context.Context, at time.Time) (*service.Result, error)
	Decline(ctx context.Context, at time.Time) (*service.Result, error)
	Tap(ctx context.Context, at time.Time) (*service.Result, error)
	Recover(ctx context.Context) (*service.Result, error)
	Status(ctx context.Context) (*service.Status, error)
	Zones(ctx context.Context, kind domain.ZoneKind) ([]*domain.GridCell, error)
	Guardrails(ctx context.Context) ([]domain.GuardrailFlag, error)
	ClearGuardrail(ctx context.Context, zone, note string) error
}

var _ Pipeline = (*service.Pipeline)(nil)

// PipelineHandler handles HTTP triggers for the trip pipeline.
type PipelineHandler struct {
	pipeline Pipeline
	status   internalRedis.StatusCache
	logger   *zap.Logger
}

// NewPipelineHandler creates a new PipelineHandler. status may be nil.
func NewPipelineHandler(pipeline Pipeline, status internalRedis.StatusCache, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline, status: status, logger: logger}
}

// StructuredOfferRequest is the JSON body of an offer extracted elsewhere.
type StructuredOfferRequest struct {
	Fare            float64    `json:"fare"`
	DistanceMiles   float64    `json:"distance_miles"`
	DurationMinutes int        `json:"duration_minutes"`
	PickupMiles     float64    `json:"pickup_miles"`
	PickupMinutes   int        `json:"pickup_minutes"`
	StarRating      float64    `json:"star_rating"`
	Pickup          string     `json:"pickup"`
	Dropoff         string     `json:"dropoff"`
	At              *time.Time `json:"at,omitempty"`
}

// StampRequest is the optional JSON body of a lifecycle stamp.
type StampRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// ClearGuardrailRequest is the optional JSON body of a guardrail review.
type ClearGuardrailRequest struct {
	Note string `json:"note"`
}

// SubmitOffer handles POST /v1/offers. A JSON body is a structured offer;
// anything else is OCR text.
func (h *PipelineHandler) SubmitOffer(c *gin.Context) {
	var (
		res *service.Result
		err error
	)

	if strings.HasPrefix(c.ContentType(), "application/json") {
		var req StructuredOfferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		offer := domain.Offer{
			Fare:            req.Fare,
			DistanceMiles:   req.DistanceMiles,
			DurationMinutes: req.DurationMinutes,
			PickupMiles:     req.PickupMiles,
			PickupMinutes:   req.PickupMinutes,
			StarRating:      req.StarRating,
			PickupLabel:     req.Pickup,
			DropoffLabel:    req.Dropoff,
		}
		res, err = h.pipeline.SubmitStructuredOffer(c.Request.Context(), offer, deref(req.At))
	} else {
		body, readErr := io.ReadAll(io.LimitReader(c.Request.Body, maxOfferBody))
		if readErr != nil {
			respondError(c, fmt.Errorf("%w: %v", errBadRequest, readErr))
			return
		}
		res, err = h.pipeline.SubmitOffer(c.Request.Context(), string(body), time.Time{})
	}

	h.invalidateStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, res)
}

// Accept handles POST /v1/trips/accept
func (h *PipelineHandler) Accept(c *gin.Context) {
	h.stamp(c, h.pipeline.Accept)
}

// Complete handles POST /v1/trips/complete
func (h *PipelineHandler) Complete(c *gin.Context) {
	h.stamp(c, h.pipeline.Complete)
}

// Decline handles POST /v1/trips/decline
func (h *PipelineHandler) Decline(c *gin.Context) {
	h.stamp(c, h.pipeline.Decline)
}

// Tap handles POST /v1/trips/tap
func (h *PipelineHandler) Tap(c *gin.Context) {
	h.stamp(c, h.pipeline.Tap)
}

func (h *PipelineHandler) stamp(c *gin.Context, op func(context.Context, time.Time) (*service.Result, error)) {
	var req StampRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	res, err := op(c.Request.Context(), deref(req.At))
	h.invalidateStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, res)
}

// Recover handles POST /v1/recover
func (h *PipelineHandler) Recover(c *gin.Context) {
	res, err := h.pipeline.Recover(c.Request.Context())
	h.invalidateStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, res)
}

// Status handles GET /v1/status
func (h *PipelineHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	if h.status != nil {
		if cached, err := h.status.GetStatus(ctx); err == nil && cached != nil {
			c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
			return
		}
	}

	status, err := h.pipeline.Status(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if h.status != nil {
		if body, err := json.Marshal(status); err == nil {
			if err := h.status.SetStatus(ctx, body); err != nil {
				h.logger.Warn("failed to cache status", zap.Error(err))
			}
		}
	}
	respondJSON(c, http.StatusOK, status)
}

// Zones handles GET /v1/zones/:kind
func (h *PipelineHandler) Zones(c *gin.Context) {
	cells, err := h.pipeline.Zones(c.Request.Context(), domain.ZoneKind(c.Param("kind")))
	if err != nil {
		respondError(c, err)
		return
	}
	if cells == nil {
		cells = []*domain.GridCell{}
	}
	respondJSON(c, http.StatusOK, gin.H{"kind": c.Param("kind"), "cells": cells})
}

// Guardrails handles GET /v1/guardrails
func (h *PipelineHandler) Guardrails(c *gin.Context) {
	flags, err := h.pipeline.Guardrails(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if flags == nil {
		flags = []domain.GuardrailFlag{}
	}
	respondJSON(c, http.StatusOK, gin.H{"flags": flags})
}

// ClearGuardrail handles POST /v1/guardrails/:zone/clear
func (h *PipelineHandler) ClearGuardrail(c *gin.Context) {
	var req ClearGuardrailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	zone := c.Param("zone")
	if err := h.pipeline.ClearGuardrail(c.Request.Context(), zone, req.Note); err != nil {
		respondError(c, err)
		return
	}
	h.invalidateStatus(c.Request.Context())
	respondJSON(c, http.StatusOK, gin.H{"zone": strings.ToUpper(zone), "cleared": true})
}

func (h *PipelineHandler) invalidateStatus(ctx context.Context) {
	if h.status == nil {
		return
	}
	if err := h.status.InvalidateStatus(ctx); err != nil {
		h.logger.Warn("failed to invalidate status cache", zap.Error(err))
	}
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
