package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/mapping"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// DescriptorService manages selected remote tables and their property mappings.
type DescriptorService interface {
	// Select creates a descriptor or re-selects it, keeping mapping and checkpoint.
	Select(ctx context.Context, userID, sourceID uuid.UUID, tableID, displayName string) (*model.Descriptor, error)
	// Deselect stops syncing a table.
	Deselect(ctx context.Context, userID uuid.UUID, tableID string) error
	// SetMapping validates and stores the property mapping of a table.
	SetMapping(ctx context.Context, userID uuid.UUID, tableID string, m model.PropertyMapping) error
	// GetMapping returns the property mapping of a table.
	GetMapping(ctx context.Context, userID uuid.UUID, tableID string) (*model.PropertyMapping, error)
	// List returns all descriptors of a user.
	List(ctx context.Context, userID uuid.UUID) ([]model.Descriptor, error)
}

type DescriptorServiceImpl struct {
	descs repository.DescriptorRepository
	creds CredentialService
}

// NewDescriptorService constructs DescriptorService.
func NewDescriptorService(descs repository.DescriptorRepository, creds CredentialService) *DescriptorServiceImpl {
	return &DescriptorServiceImpl{descs: descs, creds: creds}
}

// Select checks the source belongs to the user before storing the descriptor.
func (s *DescriptorServiceImpl) Select(ctx context.Context, userID, sourceID uuid.UUID, tableID, displayName string) (*model.Descriptor, error) {
	tableID = strings.TrimSpace(tableID)
	if userID == uuid.Nil || tableID == "" {
		return nil, fmt.Errorf("%w: empty userID/tableID", errs.ErrValidation)
	}
	if _, err := s.creds.Get(ctx, userID, sourceID); err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = tableID
	}
	d := &model.Descriptor{
		ID:          tableID,
		UserID:      userID,
		SourceID:    sourceID,
		DisplayName: displayName,
		Selected:    true,
	}
	if err := s.descs.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return s.descs.Get(ctx, userID, tableID)
}

// Deselect clears the selected flag.
func (s *DescriptorServiceImpl) Deselect(ctx context.Context, userID uuid.UUID, tableID string) error {
	if userID == uuid.Nil || tableID == "" {
		return fmt.Errorf("%w: empty userID/tableID", errs.ErrValidation)
	}
	return s.descs.SetSelected(ctx, userID, tableID, false)
}

// SetMapping rejects overlapping status buckets.
func (s *DescriptorServiceImpl) SetMapping(ctx context.Context, userID uuid.UUID, tableID string, m model.PropertyMapping) error {
	if userID == uuid.Nil || tableID == "" {
		return fmt.Errorf("%w: empty userID/tableID", errs.ErrValidation)
	}
	if err := mapping.Validate(m); err != nil {
		return err
	}
	return s.descs.SetMapping(ctx, userID, tableID, m)
}

// GetMapping returns ErrNotFound when the table has no mapping yet.
func (s *DescriptorServiceImpl) GetMapping(ctx context.Context, userID uuid.UUID, tableID string) (*model.PropertyMapping, error) {
	if userID == uuid.Nil || tableID == "" {
		return nil, fmt.Errorf("%w: empty userID/tableID", errs.ErrValidation)
	}
	d, err := s.descs.Get(ctx, userID, tableID)
	if err != nil {
		return nil, err
	}
	if d.Mapping == nil {
		return nil, fmt.Errorf("table %s has no mapping: %w", tableID, errs.ErrNotFound)
	}
	return d.Mapping, nil
}

// List returns descriptors ordered by id.
func (s *DescriptorServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Descriptor, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	return s.descs.ListByUser(ctx, userID)
}
