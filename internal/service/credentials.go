package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/and161185/taskpulse/internal/model"
	"github.com/and161185/taskpulse/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// Sealer encrypts credential payloads bound to a user.
type Sealer interface {
	Seal(userID uuid.UUID, aad string, plaintext []byte) (ciphertext, iv []byte, err error)
	Open(userID uuid.UUID, aad string, ciphertext, iv []byte) ([]byte, error)
}

// CredentialService stores and decrypts per-source credentials.
type CredentialService interface {
	// Put encrypts and stores a new credential; returns its source ID.
	Put(ctx context.Context, userID uuid.UUID, st model.SourceType, secret model.Secret) (uuid.UUID, error)
	// Rotate replaces the secret of an existing credential.
	Rotate(ctx context.Context, userID, sourceID uuid.UUID, secret model.Secret) error
	// Get returns the (still encrypted) credential owned by the user.
	Get(ctx context.Context, userID, sourceID uuid.UUID) (*model.Credential, error)
	// Secret decrypts the credential owned by the user.
	Secret(ctx context.Context, userID, sourceID uuid.UUID) (model.Secret, *model.Credential, error)
	// List returns the user's credentials.
	List(ctx context.Context, userID uuid.UUID) ([]model.Credential, error)
	// Delete disconnects a source: its tables are deselected and the credential removed.
	Delete(ctx context.Context, userID, sourceID uuid.UUID) error
}

type CredentialServiceImpl struct {
	creds  repository.CredentialRepository
	descs  repository.DescriptorRepository
	sealer Sealer
}

// NewCredentialService constructs CredentialService.
func NewCredentialService(creds repository.CredentialRepository, descs repository.DescriptorRepository, sealer Sealer) *CredentialServiceImpl {
	return &CredentialServiceImpl{creds: creds, descs: descs, sealer: sealer}
}

func credentialAAD(sourceID uuid.UUID, st model.SourceType) string {
	return "credential:" + string(st) + ":" + sourceID.String()
}

// Put validates and encrypts the secret with a fresh source ID.
func (s *CredentialServiceImpl) Put(ctx context.Context, userID uuid.UUID, st model.SourceType, secret model.Secret) (uuid.UUID, error) {
	if userID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	if !st.Valid() {
		return uuid.Nil, fmt.Errorf("%w: unknown source type %q", errs.ErrValidation, st)
	}
	if secret.AccessToken == "" && secret.RefreshToken == "" {
		return uuid.Nil, fmt.Errorf("%w: empty token", errs.ErrValidation)
	}
	sourceID, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	enc, iv, err := s.seal(userID, sourceID, st, secret)
	if err != nil {
		return uuid.Nil, err
	}
	c := &model.Credential{
		SourceID:         sourceID,
		UserID:           userID,
		SourceType:       st,
		EncryptedPayload: enc,
		IV:               iv,
	}
	if err := s.creds.Create(ctx, c); err != nil {
		return uuid.Nil, err
	}
	return sourceID, nil
}

// Rotate re-encrypts a new secret under the same source ID.
func (s *CredentialServiceImpl) Rotate(ctx context.Context, userID, sourceID uuid.UUID, secret model.Secret) error {
	if secret.AccessToken == "" && secret.RefreshToken == "" {
		return fmt.Errorf("%w: empty token", errs.ErrValidation)
	}
	c, err := s.Get(ctx, userID, sourceID)
	if err != nil {
		return err
	}
	enc, iv, err := s.seal(userID, sourceID, c.SourceType, secret)
	if err != nil {
		return err
	}
	return s.creds.UpdatePayload(ctx, sourceID, enc, iv)
}

// Get loads a credential and hides credentials of other users as not found.
func (s *CredentialServiceImpl) Get(ctx context.Context, userID, sourceID uuid.UUID) (*model.Credential, error) {
	if userID == uuid.Nil || sourceID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty userID/sourceID", errs.ErrValidation)
	}
	c, err := s.creds.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, errs.ErrNotFound
	}
	return c, nil
}

// Secret decrypts the payload. Any decryption or decoding failure is an invalid credential.
func (s *CredentialServiceImpl) Secret(ctx context.Context, userID, sourceID uuid.UUID) (model.Secret, *model.Credential, error) {
	c, err := s.Get(ctx, userID, sourceID)
	if err != nil {
		return model.Secret{}, nil, err
	}
	plain, err := s.sealer.Open(userID, credentialAAD(sourceID, c.SourceType), c.EncryptedPayload, c.IV)
	if err != nil {
		return model.Secret{}, nil, fmt.Errorf("%w: decrypt: %v", errs.ErrInvalidCredential, err)
	}
	var secret model.Secret
	if err := json.Unmarshal(plain, &secret); err != nil {
		return model.Secret{}, nil, fmt.Errorf("%w: decode payload: %v", errs.ErrInvalidCredential, err)
	}
	if secret.AccessToken == "" && secret.RefreshToken == "" {
		return model.Secret{}, nil, fmt.Errorf("%w: no token in payload", errs.ErrInvalidCredential)
	}
	return secret, c, nil
}

// List returns credentials of a user.
func (s *CredentialServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Credential, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty userID", errs.ErrValidation)
	}
	return s.creds.ListByUser(ctx, userID)
}

// Delete deselects the tables of the source, then removes the credential.
func (s *CredentialServiceImpl) Delete(ctx context.Context, userID, sourceID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, sourceID); err != nil {
		return err
	}
	if err := s.descs.DeselectBySource(ctx, sourceID); err != nil {
		return fmt.Errorf("deselect tables: %w", err)
	}
	if err := s.creds.Delete(ctx, sourceID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	return nil
}

func (s *CredentialServiceImpl) seal(userID, sourceID uuid.UUID, st model.SourceType, secret model.Secret) (model.EncryptedBlob, []byte, error) {
	plain, err := json.Marshal(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payload: %w", err)
	}
	enc, iv, err := s.sealer.Seal(userID, credentialAAD(sourceID, st), plain)
	if err != nil {
		return nil, nil, fmt.Errorf("encrypt payload: %w", err)
	}
	return model.EncryptedBlob(enc), iv, nil
}
