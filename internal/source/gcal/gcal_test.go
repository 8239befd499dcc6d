package gcal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const eventsJSON = `{
 "items": [
  {"id": "e1", "summary": "Planning", "status": "confirmed",
   "created": "2024-01-08T09:00:00Z", "updated": "2024-01-10T00:00:00Z",
   "start": {"dateTime": "2024-01-12T10:00:00+01:00"}, "end": {"date": "2024-01-13"},
   "attendees": [{"email": "ann@example.com", "displayName": "Ann"}]},
  {"id": "e2", "summary": "Retro", "status": "cancelled", "recurringEventId": "r1",
   "updated": "2024-01-10T08:30:00Z",
   "organizer": {"email": "bob@example.com"}}
 ],
 "nextPageToken": "n2"
}`

func newTestSource(t *testing.T, h http.HandlerFunc) *Source {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	s, err := New(context.Background(), option.WithHTTPClient(ts.Client()), option.WithEndpoint(ts.URL+"/"))
	require.NoError(t, err)
	return s
}

func TestListPage_MapsEventsAndFilter(t *testing.T) {
	var got *http.Request
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventsJSON))
	})
	cp := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	p, err := s.ListPage(context.Background(), "primary", source.Filter{ModifiedAfter: &cp}, "n1")
	require.NoError(t, err)
	require.True(t, strings.Contains(got.URL.Path, "/calendars/primary/events"))
	q := got.URL.Query()
	require.Equal(t, "2024-01-10T00:00:00Z", q.Get("updatedMin"))
	require.Equal(t, "true", q.Get("showDeleted"))
	require.Equal(t, "n1", q.Get("pageToken"))

	require.True(t, p.HasMore)
	require.Equal(t, "n2", p.NextCursor)
	// e1 was updated exactly at the checkpoint and is dropped.
	require.Len(t, p.Records, 1)
	r := p.Records[0]
	require.Equal(t, "e2", r.ID)
	require.True(t, r.Archived)
	require.Equal(t, "r1", r.ParentID)
	require.Equal(t, "Retro", r.Properties[PropSummary].Text)
	require.Equal(t, []model.Person{{ID: "bob@example.com", Email: "bob@example.com"}}, r.Properties[PropOrganizer].People)
	require.Equal(t, model.KindEmpty, r.Properties[PropStart].Kind)
}

func TestListPage_Unfiltered(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("updatedMin"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventsJSON))
	})

	p, err := s.ListPage(context.Background(), "primary", source.Filter{}, "")
	require.NoError(t, err)
	require.Len(t, p.Records, 2)

	e1 := p.Records[0]
	require.Equal(t, time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC), *e1.Properties[PropStart].Date)
	require.Equal(t, time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC), *e1.Properties[PropEnd].Date)
	require.Equal(t, "ann@example.com", e1.Properties[PropAttendees].People[0].ID)
	require.Equal(t, time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC), *e1.CreatedAt)
}

func TestListPage_Errors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, errs.ErrInvalidCredential},
		{http.StatusNotFound, source.ErrPermanent},
	}
	for _, tc := range cases {
		s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
		})
		_, err := s.ListPage(context.Background(), "primary", source.Filter{}, "")
		require.ErrorIs(t, err, tc.want)
	}

	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := s.ListPage(context.Background(), "primary", source.Filter{}, "")
	require.Error(t, err)
	require.True(t, source.Retryable(err))
}

func TestOpener_RejectsEmptySecret(t *testing.T) {
	_, err := Opener("id", "secret")(context.Background(), model.Secret{})
	require.ErrorIs(t, err, errs.ErrInvalidCredential)
}
