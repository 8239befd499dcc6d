// Package sourcetest provides a scripted in-memory source.Source for tests.
package sourcetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/source"
)

// Call is one recorded ListPage invocation.
type Call struct {
	CollectionID string
	Filter       source.Filter
	Cursor       string
}

// Fake serves records per collection in fixed size pages and honors Filter.ModifiedAfter.
type Fake struct {
	mu       sync.Mutex
	pageSize int
	records  map[string][]model.Record
	errs     map[string][]error
	calls    []Call
}

var _ source.Source = (*Fake)(nil)

// New returns a fake with the given page size (minimum 1).
func New(pageSize int) *Fake {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Fake{pageSize: pageSize, records: map[string][]model.Record{}, errs: map[string][]error{}}
}

// SetRecords replaces the records of a collection.
func (f *Fake) SetRecords(collectionID string, recs ...model.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[collectionID] = append([]model.Record(nil), recs...)
}

// FailNext queues errors returned by the next ListPage calls on a collection, one per call.
func (f *Fake) FailNext(collectionID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[collectionID] = append(f.errs[collectionID], errs...)
}

// Calls returns the recorded invocations.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// ListPage implements source.Source. The cursor is the offset into the filtered list.
func (f *Fake) ListPage(ctx context.Context, collectionID string, filter source.Filter, cursor string) (source.Page, error) {
	if err := ctx.Err(); err != nil {
		return source.Page{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{CollectionID: collectionID, Filter: filter, Cursor: cursor})

	if q := f.errs[collectionID]; len(q) > 0 {
		f.errs[collectionID] = q[1:]
		return source.Page{}, q[0]
	}

	var matched []model.Record
	for _, r := range f.records[collectionID] {
		if filter.After(r.LastModifiedAt) {
			matched = append(matched, r)
		}
	}

	off := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(matched) {
			return source.Page{}, fmt.Errorf("%w: bad cursor %q", source.ErrPermanent, cursor)
		}
		off = n
	}
	end := off + f.pageSize
	if end > len(matched) {
		end = len(matched)
	}
	p := source.Page{Records: append([]model.Record(nil), matched[off:end]...)}
	if end < len(matched) {
		p.HasMore = true
		p.NextCursor = strconv.Itoa(end)
	}
	return p, nil
}
