package service

import (
	"errors"
	"fmt"

	"onisai/internal/lock"
)

var (
	// ErrNotAnOffer is returned when the OCR text has neither a fare nor a time/distance row.
	ErrNotAnOffer = errors.New("text is not an offer card")

	// ErrMalformedOffer is returned when the text looks like an offer but a required field is missing or out of bounds.
	ErrMalformedOffer = errors.New("malformed offer")

	// ErrInvalidTransition is returned when a stamp is not the valid successor of the open trip's state.
	ErrInvalidTransition = errors.New("invalid trip transition")

	// ErrNoOpenTrip is returned when a stamp arrives and no trip is open. It wraps ErrInvalidTransition.
	ErrNoOpenTrip = fmt.Errorf("%w: no open trip", ErrInvalidTransition)

	// ErrTripAlreadyOpen is returned when an offer arrives while another trip is still open.
	ErrTripAlreadyOpen = errors.New("a trip is already open")

	// ErrDuplicateOffer is returned when the same OCR text is submitted twice in a row.
	ErrDuplicateOffer = errors.New("duplicate offer text")

	// ErrDegenerateOffer is returned when distance or duration is not positive.
	ErrDegenerateOffer = errors.New("degenerate offer: distance and duration must be positive")

	// ErrPartialArchive is returned when a trip was archived but its unified log lines could not be pruned.
	ErrPartialArchive = errors.New("trip archived but not pruned")

	// ErrIOFailure is returned when a store write fails after its retry.
	ErrIOFailure = errors.New("store write failed")

	// ErrLockHeld is returned when the pipeline lock could not be taken in time.
	ErrLockHeld = lock.ErrHeld

	// ErrInvalidZoneKind is returned when a zone kind is neither pickup nor dropoff.
	ErrInvalidZoneKind = errors.New("invalid zone kind")

	// ErrZoneNotFlagged is returned when clearing a zone that has no active flag.
	ErrZoneNotFlagged = errors.New("zone is not flagged")
)
