// Package store persists transcription history so results can be listed
// and repeated uploads answered without running the model again.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaz8081/gostt-server/internal/config"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("store: record not found")

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// Record is one completed transcription.
type Record struct {
	ID              string    `json:"id"`
	Filename        string    `json:"filename"`
	Digest          string    `json:"digest"`
	Model           string    `json:"model"`
	Transcription   string    `json:"transcription"`
	DurationSeconds float64   `json:"duration_seconds"`
	SizeBytes       int64     `json:"size_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store is the transcription history backend.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// FindByDigest returns the newest record for the same audio content
	// transcribed by the same model.
	FindByDigest(ctx context.Context, digest, model string) (*Record, error)
	// List returns the newest records first.
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(cfg.DSN)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// Nop is a Store that keeps nothing.
type Nop struct{}

func (Nop) Save(context.Context, *Record) error { return nil }

func (Nop) Get(context.Context, string) (*Record, error) { return nil, ErrNotFound }

func (Nop) FindByDigest(context.Context, string, string) (*Record, error) {
	return nil, ErrNotFound
}

func (Nop) List(context.Context, int) ([]Record, error) { return nil, nil }

func (Nop) Close() error { return nil }

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
