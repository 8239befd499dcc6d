// Package notion reads Notion databases through github.com/jomei/notionapi.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/source"
	"github.com/jomei/notionapi"
)

// DefaultPageSize is the page size requested from the Notion API (its maximum).
const DefaultPageSize = 100

type databaseQuerier interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// Source lists pages of Notion databases as records.
type Source struct {
	db       databaseQuerier
	pageSize int
}

var _ source.Source = (*Source)(nil)

// New returns a Source authenticated with an integration or OAuth access token.
func New(token string, opts ...notionapi.ClientOption) *Source {
	c := notionapi.NewClient(notionapi.Token(token), opts...)
	return &Source{db: c.Database, pageSize: DefaultPageSize}
}

// Open is a source.Opener for Notion credentials.
func Open(_ context.Context, secret model.Secret) (source.Source, error) {
	if secret.AccessToken == "" {
		return nil, fmt.Errorf("%w: notion: empty access token", errs.ErrInvalidCredential)
	}
	return New(secret.AccessToken), nil
}

// ListPage queries one page of a database.
func (s *Source) ListPage(ctx context.Context, collectionID string, filter source.Filter, cursor string) (source.Page, error) {
	req := &notionapi.DatabaseQueryRequest{
		StartCursor: notionapi.Cursor(cursor),
		PageSize:    s.pageSize,
	}
	if filter.ModifiedAfter != nil {
		// last_edited_time is truncated to the minute; ask from the minute before and filter strictly below.
		after := notionapi.Date(filter.ModifiedAfter.UTC().Add(-time.Minute))
		req.Filter = &notionapi.TimestampFilter{
			Timestamp:      notionapi.TimestampLastEdited,
			LastEditedTime: &notionapi.DateFilterCondition{After: &after},
		}
	}

	resp, err := s.db.Query(ctx, notionapi.DatabaseID(collectionID), req)
	if err != nil {
		return source.Page{}, classify(err)
	}

	out := source.Page{HasMore: resp.HasMore, NextCursor: string(resp.NextCursor)}
	for i := range resp.Results {
		r := toRecord(&resp.Results[i])
		// An edit inside the checkpoint's own minute reports the checkpoint itself and is skipped
		// until the next backfill.
		if filter.After(r.LastModifiedAt) {
			out.Records = append(out.Records, r)
		}
	}
	if out.NextCursor == "" {
		out.HasMore = false
	}
	return out, nil
}

func classify(err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: notion: %s", errs.ErrInvalidCredential, apiErr.Message)
		case http.StatusBadRequest, http.StatusNotFound:
			return fmt.Errorf("%w: notion: %s", source.ErrPermanent, apiErr.Message)
		}
	}
	return fmt.Errorf("notion query: %w", err)
}

func toRecord(p *notionapi.Page) model.Record {
	created := p.CreatedTime.UTC()
	edited := p.LastEditedTime.UTC()
	r := model.Record{
		ID:             string(p.ID),
		CreatedAt:      &created,
		LastModifiedAt: &edited,
		Archived:       p.Archived,
		Properties:     make(map[string]model.Value, len(p.Properties)),
	}
	for name, prop := range p.Properties {
		r.Properties[name] = toValue(prop)
	}
	return r
}

func toValue(prop notionapi.Property) model.Value {
	switch v := prop.(type) {
	case *notionapi.TitleProperty:
		return model.Text(plainText(v.Title))
	case *notionapi.RichTextProperty:
		return model.Text(plainText(v.RichText))
	case *notionapi.StatusProperty:
		if v.Status.Name == "" {
			return model.Value{}
		}
		return model.Text(v.Status.Name)
	case *notionapi.SelectProperty:
		if v.Select.Name == "" {
			return model.Value{}
		}
		return model.Text(v.Select.Name)
	case *notionapi.MultiSelectProperty:
		opts := make([]string, 0, len(v.MultiSelect))
		for _, o := range v.MultiSelect {
			opts = append(opts, o.Name)
		}
		return model.Options(opts...)
	case *notionapi.PeopleProperty:
		people := make([]model.Person, 0, len(v.People))
		for _, u := range v.People {
			people = append(people, person(u))
		}
		return model.People(people...)
	case *notionapi.DateProperty:
		if v.Date == nil || v.Date.Start == nil {
			return model.Value{}
		}
		t := time.Time(*v.Date.Start).UTC()
		return model.Date(&t)
	case *notionapi.NumberProperty:
		return model.Number(v.Number)
	case *notionapi.CheckboxProperty:
		return model.Checkbox(v.Checkbox)
	case *notionapi.RelationProperty:
		ids := make([]string, 0, len(v.Relation))
		for _, rel := range v.Relation {
			ids = append(ids, string(rel.ID))
		}
		return model.Relation(ids...)
	case *notionapi.CreatedTimeProperty:
		t := v.CreatedTime.UTC()
		return model.Date(&t)
	case *notionapi.LastEditedTimeProperty:
		t := v.LastEditedTime.UTC()
		return model.Date(&t)
	case *notionapi.URLProperty:
		return model.Text(v.URL)
	case *notionapi.EmailProperty:
		return model.Text(v.Email)
	}
	return model.Value{}
}

func person(u notionapi.User) model.Person {
	p := model.Person{ID: string(u.ID), Name: u.Name}
	if u.Person != nil {
		p.Email = u.Person.Email
	}
	return p
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, t := range rt {
		b.WriteString(t.PlainText)
	}
	return b.String()
}
