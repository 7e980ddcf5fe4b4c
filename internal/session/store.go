// Package session persists in-progress wizard flows so they can be resumed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Record is one persisted flow. Payload holds the serialized flow snapshot
// exactly as the flow package produced it.
type Record struct {
	ID        string          `json:"id"`
	Command   string          `json:"command"`
	State     string          `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload"`
}

type Store interface {
	Save(ctx context.Context, rec Record) error
	// Load returns ErrNotFound for an unknown id.
	Load(ctx context.Context, id string) (Record, error)
	// Delete returns ErrNotFound for an unknown id.
	Delete(ctx context.Context, id string) error
	// List returns records newest first. limit <= 0 means the default of 20.
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

func NewID() string {
	return uuid.NewString()
}

func validate(rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("save session: missing id")
	}
	if len(rec.Payload) == 0 {
		return errors.New("save session: empty payload")
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
