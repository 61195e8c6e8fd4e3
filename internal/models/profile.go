package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchProfile is a user's standing search configuration. The
// orchestrator only reads active profiles; an empty keyword list means
// a single unfiltered pass, an empty state list means all states.
type SearchProfile struct {
	ID             uuid.UUID  `json:"id"`
	UserID         *uuid.UUID `json:"user_id"`
	Name           string     `json:"name"`
	Keywords       []string   `json:"keywords"`
	States         []string   `json:"states"`
	Modalidades    []int      `json:"modalidades"`
	IsActive       bool       `json:"is_active"`
	LastSearchDate *time.Time `json:"last_search_date"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RunParams is the parameters snapshot stored with each run log row.
type RunParams struct {
	Keywords    []string `json:"keywords"`
	States      []string `json:"states"`
	Modalidades []int    `json:"modalidades"`
}

// RunLog is one append-only row per (profile, orchestrator pass).
// ResultsCount counts successful inserts only; duplicates found and
// skipped do not increment it.
type RunLog struct {
	ID             uuid.UUID `json:"id"`
	SearchConfigID uuid.UUID `json:"search_configuration_id"`
	Params         RunParams `json:"params"`
	Status         string    `json:"status"` // success | error
	ResultsCount   int       `json:"results_count"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)
