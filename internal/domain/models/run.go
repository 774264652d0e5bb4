package models

import (
	"strings"
	"time"
)

// Note keys recorded on a RunAudit.
const (
	NoteNoNewCandles = "no_new_candles"
)

// RunAudit is the persisted record of one ingestion cycle.
// It is built by the orchestrator during a run and must not change after FinishedAt is set.
type RunAudit struct {
	ID               string     `json:"id"`
	Symbol           string     `json:"symbol"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	ProviderPrimary  string     `json:"provider_primary"`
	ProviderFallback string     `json:"provider_fallback"`
	PrimaryOK        bool       `json:"primary_ok"`
	FallbackOK       bool       `json:"fallback_ok"`
	PrimaryFetched   int        `json:"candles_fetched_primary"`
	FallbackFetched  int        `json:"candles_fetched_fallback"`
	BarsSaved        int        `json:"candles_saved"`
	GapsFilled       int        `json:"missing_filled"`
	OutliersRejected int        `json:"outliers_rejected"`
	Notes            string     `json:"notes"`
}

// AddNote appends a note, separating entries with "; ".
func (r *RunAudit) AddNote(note string) {
	if note == "" {
		return
	}
	if r.Notes == "" {
		r.Notes = note
		return
	}
	r.Notes = r.Notes + "; " + note
}

// HasNote reports whether note was recorded on the run.
func (r *RunAudit) HasNote(note string) bool {
	for _, n := range strings.Split(r.Notes, "; ") {
		if n == note {
			return true
		}
	}
	return false
}

// Finish stamps FinishedAt. Later calls keep the first value.
func (r *RunAudit) Finish(at time.Time) {
	if r.FinishedAt != nil {
		return
	}
	t := at
	r.FinishedAt = &t
}

// Finished reports whether the run has been sealed.
func (r *RunAudit) Finished() bool { return r.FinishedAt != nil }
