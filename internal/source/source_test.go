package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/stretchr/testify/require"
)

type nopSource struct{}

func (nopSource) ListPage(context.Context, string, Filter, string) (Page, error) { return Page{}, nil }

func TestRegistry_Open(t *testing.T) {
	r := NewRegistry()
	var got model.Secret
	r.Register(model.SourceNotion, func(_ context.Context, s model.Secret) (Source, error) {
		got = s
		return nopSource{}, nil
	})

	src, err := r.Open(context.Background(), model.SourceNotion, model.Secret{AccessToken: "tok"})
	require.NoError(t, err)
	require.NotNil(t, src)
	require.Equal(t, "tok", got.AccessToken)

	_, err = r.Open(context.Background(), model.SourceGoogleCalendar, model.Secret{})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestRetryable(t *testing.T) {
	require.False(t, Retryable(nil))
	require.False(t, Retryable(fmt.Errorf("x: %w", errs.ErrInvalidCredential)))
	require.False(t, Retryable(fmt.Errorf("x: %w", ErrPermanent)))
	require.False(t, Retryable(context.Canceled))
	require.True(t, Retryable(errors.New("502 bad gateway")))
}

func TestFilter_After(t *testing.T) {
	cp := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	before := cp.Add(-time.Second)
	after := cp.Add(time.Second)

	require.True(t, Filter{}.After(nil))
	f := Filter{ModifiedAfter: &cp}
	require.False(t, f.After(&before))
	require.False(t, f.After(&cp))
	require.True(t, f.After(&after))
	require.False(t, f.After(nil))
}
