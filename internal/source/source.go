// Package source defines the narrow vendor interface the sync engine reads pages through.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
)

// ErrPermanent marks a vendor failure that will not go away on retry (bad request, unknown table).
var ErrPermanent = errors.New("source: permanent failure")

// Filter restricts a listing. A nil ModifiedAfter lists everything.
type Filter struct {
	// ModifiedAfter keeps only records modified strictly after this instant.
	ModifiedAfter *time.Time
}

// Page is one page of records from a remote collection.
type Page struct {
	Records    []model.Record
	HasMore    bool
	NextCursor string
}

// Source lists records of remote collections page by page.
type Source interface {
	ListPage(ctx context.Context, collectionID string, filter Filter, cursor string) (Page, error)
}

// Opener builds a Source for a decrypted credential.
type Opener func(ctx context.Context, secret model.Secret) (Source, error)

// Registry maps source types to openers.
type Registry struct {
	mu      sync.RWMutex
	openers map[model.SourceType]Opener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{openers: make(map[model.SourceType]Opener)}
}

// Register binds an opener to a source type, replacing any previous one.
func (r *Registry) Register(t model.SourceType, o Opener) {
	r.mu.Lock()
	r.openers[t] = o
	r.mu.Unlock()
}

// Open builds the source for t.
func (r *Registry) Open(ctx context.Context, t model.SourceType, secret model.Secret) (Source, error) {
	r.mu.RLock()
	o, ok := r.openers[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no source registered for %q", errs.ErrValidation, t)
	}
	return o(ctx, secret)
}

// Retryable reports whether a ListPage error may succeed on a later attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, errs.ErrInvalidCredential),
		errors.Is(err, ErrPermanent),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// After reports whether ts passes the filter. Records without a timestamp pass only unfiltered listings.
func (f Filter) After(ts *time.Time) bool {
	if f.ModifiedAfter == nil {
		return true
	}
	return ts != nil && ts.After(*f.ModifiedAfter)
}
