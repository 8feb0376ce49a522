package domain

import "time"

// ProcessState is the resume cursor for interrupted pipeline stages.
type ProcessState struct {
	LastOCRHash      string    `json:"last_ocr_hash"`
	LastArchivedTrip string    `json:"last_archived_trip"`
	LastGriddedTrip  string    `json:"last_gridded_trip"`
	LastGuardedTrip  string    `json:"last_guarded_trip"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PendingGrid reports whether the last archived trip has not been gridded.
func (s ProcessState) PendingGrid() bool {
	return s.LastArchivedTrip != "" && s.LastArchivedTrip != s.LastGriddedTrip
}

// PendingGuard reports whether the last gridded trip has not been checked.
func (s ProcessState) PendingGuard() bool {
	return s.LastGriddedTrip != "" && s.LastGriddedTrip != s.LastGuardedTrip
}
