// Package service implements the subscriber whitelist checks and bulk upload.
package service

import (
	"context"
	"errors"
	"log/slog"

	"simkyc/internal/msisdn"
	"simkyc/internal/subscriber/models"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/platform/sentinel"
	strs "simkyc/pkg/platform/strings"
	"simkyc/pkg/requestcontext"
)

// Store is the subscriber persistence the service needs.
type Store interface {
	FindAny(ctx context.Context, forms []string) (*models.Subscriber, error)
	Count(ctx context.Context) (int, error)
	UpsertWhitelisted(ctx context.Context, msisdns []string) (inserted, updated []string, err error)
}

type Service struct {
	store         Store
	allowUnseeded bool
	logger        *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithAllowUnseeded treats every number as eligible on lookup while the
// subscriber table is empty.
func WithAllowUnseeded(allow bool) Option {
	return func(s *Service) {
		s.allowUnseeded = allow
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("subscriber store is required")
	}
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookup normalizes raw loosely and reports its whitelist state.
func (s *Service) Lookup(ctx context.Context, raw string) (models.Lookup, error) {
	n, ok := msisdn.Loose(raw)
	if !ok {
		return models.Lookup{}, dErrors.New(dErrors.CodeValidation, "Invalid phone number format.")
	}
	res, err := s.Check(ctx, n)
	if err != nil {
		return models.Lookup{}, err
	}
	if s.allowUnseeded {
		count, err := s.store.Count(ctx)
		if err != nil {
			return models.Lookup{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count subscribers")
		}
		res.Bypassed = count == 0
	}
	return res, nil
}

// Check looks up an already normalized number. It never bypasses.
func (s *Service) Check(ctx context.Context, n string) (models.Lookup, error) {
	res := models.Lookup{MSISDN: n}
	sub, err := s.store.FindAny(ctx, msisdn.StoredForms(n))
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return res, nil
	case err != nil:
		return models.Lookup{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up subscriber")
	}
	res.RecordExists = true
	res.IsWhitelisted = sub.IsWhitelisted
	return res, nil
}

// Upload whitelists every valid number in raw.
func (s *Service) Upload(ctx context.Context, raw []string) (*models.UploadResult, error) {
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "Provide phoneNumbers (or msisdn) as a non-empty array.")
	}

	res := &models.UploadResult{Received: len(raw)}
	normalized := make([]string, 0, len(raw))
	for _, r := range raw {
		n, ok := msisdn.Loose(r)
		if !ok {
			res.Invalid = append(res.Invalid, r)
			continue
		}
		normalized = append(normalized, n)
	}
	res.Normalized = len(normalized)
	unique := strs.DedupeAndTrim(normalized)
	if len(unique) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "No valid phone numbers found after normalization.")
	}
	res.Unique = len(unique)
	res.DuplicatesRemoved = res.Normalized - res.Unique

	inserted, updated, err := s.store.UpsertWhitelisted(ctx, unique)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert subscribers")
	}
	res.Inserted, res.Updated = inserted, updated

	s.logger.InfoContext(ctx, "subscriber whitelist uploaded",
		"request_id", requestcontext.RequestID(ctx),
		"received", res.Received,
		"inserted", len(inserted),
		"updated", len(updated),
		"invalid", len(res.Invalid),
	)
	return res, nil
}
