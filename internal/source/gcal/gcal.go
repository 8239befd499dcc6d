// Package gcal reads Google Calendar events as task records.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/source"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Property names exposed to property mappings.
const (
	PropSummary     = "summary"
	PropStatus      = "status"
	PropStart       = "start"
	PropEnd         = "end"
	PropAttendees   = "attendees"
	PropOrganizer   = "organizer"
	PropColor       = "colorId"
	PropEventType   = "eventType"
	PropDescription = "description"
	PropLocation    = "location"
)

const defaultPageSize = 250

// Source lists events of calendars.
type Source struct {
	srv      *calendar.Service
	pageSize int64
}

var _ source.Source = (*Source)(nil)

// Opener returns a source.Opener that refreshes tokens with the given OAuth client.
func Opener(clientID, clientSecret string, opts ...option.ClientOption) source.Opener {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}
	return func(ctx context.Context, secret model.Secret) (source.Source, error) {
		if secret.AccessToken == "" && secret.RefreshToken == "" {
			return nil, fmt.Errorf("%w: google: empty token", errs.ErrInvalidCredential)
		}
		tok := &oauth2.Token{
			AccessToken:  secret.AccessToken,
			TokenType:    secret.TokenType,
			RefreshToken: secret.RefreshToken,
			Expiry:       secret.Expiry,
		}
		all := append([]option.ClientOption{option.WithTokenSource(cfg.TokenSource(ctx, tok))}, opts...)
		return New(ctx, all...)
	}
}

// New builds a Source over a calendar service constructed with opts.
func New(ctx context.Context, opts ...option.ClientOption) (*Source, error) {
	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return &Source{srv: srv, pageSize: defaultPageSize}, nil
}

// ListPage lists one page of events; collectionID is the calendar id.
// Cancelled events come back as archived records when a filter is set.
func (s *Source) ListPage(ctx context.Context, collectionID string, filter source.Filter, cursor string) (source.Page, error) {
	call := s.srv.Events.List(collectionID).Context(ctx).MaxResults(s.pageSize)
	if cursor != "" {
		call = call.PageToken(cursor)
	}
	if filter.ModifiedAfter != nil {
		call = call.UpdatedMin(filter.ModifiedAfter.UTC().Format(time.RFC3339)).ShowDeleted(true)
	}
	events, err := call.Do()
	if err != nil {
		return source.Page{}, classify(err)
	}

	out := source.Page{NextCursor: events.NextPageToken, HasMore: events.NextPageToken != ""}
	for _, ev := range events.Items {
		r := toRecord(ev)
		// updatedMin is inclusive.
		if filter.After(r.LastModifiedAt) {
			out.Records = append(out.Records, r)
		}
	}
	return out, nil
}

func classify(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: google: %s", errs.ErrInvalidCredential, gErr.Message)
		case http.StatusBadRequest, http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: google: %s", source.ErrPermanent, gErr.Message)
		}
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return fmt.Errorf("%w: google token refresh: %s", errs.ErrInvalidCredential, rErr.ErrorCode)
	}
	return fmt.Errorf("calendar events: %w", err)
}

func toRecord(ev *calendar.Event) model.Record {
	r := model.Record{
		ID:             ev.Id,
		CreatedAt:      parseTime(ev.Created),
		LastModifiedAt: parseTime(ev.Updated),
		Archived:       ev.Status == "cancelled",
		ParentID:       ev.RecurringEventId,
		Properties: map[string]model.Value{
			PropSummary:     text(ev.Summary),
			PropStatus:      text(ev.Status),
			PropStart:       model.Date(eventTime(ev.Start)),
			PropEnd:         model.Date(eventTime(ev.End)),
			PropColor:       text(ev.ColorId),
			PropEventType:   text(ev.EventType),
			PropDescription: text(ev.Description),
			PropLocation:    text(ev.Location),
		},
	}
	if len(ev.Attendees) > 0 {
		people := make([]model.Person, 0, len(ev.Attendees))
		for _, a := range ev.Attendees {
			if a == nil {
				continue
			}
			people = append(people, model.Person{ID: firstNonEmpty(a.Id, a.Email), Name: a.DisplayName, Email: a.Email})
		}
		r.Properties[PropAttendees] = model.People(people...)
	}
	if o := ev.Organizer; o != nil {
		r.Properties[PropOrganizer] = model.People(model.Person{ID: firstNonEmpty(o.Id, o.Email), Name: o.DisplayName, Email: o.Email})
	}
	return r
}

func eventTime(dt *calendar.EventDateTime) *time.Time {
	if dt == nil {
		return nil
	}
	if dt.DateTime != "" {
		return parseTime(dt.DateTime)
	}
	if dt.Date != "" {
		t, err := time.Parse(time.DateOnly, dt.Date)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func text(s string) model.Value {
	if s == "" {
		return model.Value{}
	}
	return model.Text(s)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
