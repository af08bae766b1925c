package app

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/mellivod/Lounge/internal/domain"
)

var (
	ErrNoTimestamp   = errors.New("update has no timestamp")
	ErrNoSequence    = errors.New("update has no sequence number")
	ErrClockSkew     = errors.New("timestamp outside tolerance")
	ErrNegativeScore = errors.New("negative score")
	ErrHealthBounds  = errors.New("health above ceiling")
)

// AntiCheat is a plausibility filter over incoming state updates, not a
// full anti-cheat engine. It knows nothing about game rules; it only checks
// the generic envelope and two well-known fields inside the opaque payload.
type AntiCheat struct {
	Tolerance time.Duration
	MaxHealth float64

	now func() time.Time
}

func NewAntiCheat(tolerance time.Duration, maxHealth float64) *AntiCheat {
	return &AntiCheat{Tolerance: tolerance, MaxHealth: maxHealth, now: time.Now}
}

// suspectFields are the generic values the validator can bound-check inside
// a per-game payload. Absent fields are simply not checked.
type suspectFields struct {
	Score  *float64 `json:"score"`
	Health *float64 `json:"health"`
}

// Validate returns nil when the update is plausible. The caller drops a
// failing update from the authoritative relay; no correction is pushed back
// to the sender.
func (a *AntiCheat) Validate(upd domain.StateUpdate) error {
	if upd.Timestamp == 0 {
		return ErrNoTimestamp
	}
	if upd.Seq == 0 {
		return ErrNoSequence
	}

	skew := a.now().UnixMilli() - upd.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Millisecond > a.Tolerance {
		return ErrClockSkew
	}

	if len(upd.GameState) == 0 {
		return nil
	}
	var f suspectFields
	if err := json.Unmarshal(upd.GameState, &f); err != nil {
		// Non-object payloads carry nothing to bound-check.
		return nil
	}
	if f.Score != nil && *f.Score < 0 {
		return ErrNegativeScore
	}
	if f.Health != nil && *f.Health > a.MaxHealth {
		return ErrHealthBounds
	}
	return nil
}
