//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks VerificationFetcher

// Package ports declares what the reconciliation layer needs from storage and
// from the identity provider.
package ports

import (
	"context"
	"time"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
)

// CorrelationKey names a provider-assigned id column on verifications.
type CorrelationKey string

const (
	KeyVerificationID CorrelationKey = "verification_id"
	KeyIdentityID     CorrelationKey = "identity_id"
	KeySessionID      CorrelationKey = "session_id"
)

// ServiceRequestStore persists service requests. Finders return
// sentinel.ErrNotFound when nothing matches.
type ServiceRequestStore interface {
	Create(ctx context.Context, req *models.ServiceRequest) error
	Update(ctx context.Context, req *models.ServiceRequest) error
	FindByID(ctx context.Context, id int64) (*models.ServiceRequest, error)
	FindLatestByMSISDN(ctx context.Context, msisdn string) (*models.ServiceRequest, error)
	ListRecent(ctx context.Context, limit int) ([]*models.ServiceRequest, error)
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	TypesByID(ctx context.Context, ids []int64) (map[int64]models.RequestType, error)
}

// VerificationStore persists KYC verification attempts. "Latest" means
// highest id unless stated otherwise.
type VerificationStore interface {
	Create(ctx context.Context, v *models.Verification) error
	Update(ctx context.Context, v *models.Verification) error
	FindByID(ctx context.Context, id int64) (*models.Verification, error)
	FindLatestByKey(ctx context.Context, key CorrelationKey, value string) (*models.Verification, error)
	// FindLatestByAnyKey matches value against verification, identity and session ids.
	FindLatestByAnyKey(ctx context.Context, value string) (*models.Verification, error)
	FindLatestForRequest(ctx context.Context, serviceRequestID int64) (*models.Verification, error)
	ListForRequest(ctx context.Context, serviceRequestID int64) ([]*models.Verification, error)
	// ListStalePending returns pending verifications that carry a provider
	// verification id, were last updated before the cutoff and have an id
	// above afterID, in id order.
	ListStalePending(ctx context.Context, updatedBefore time.Time, afterID int64, limit int) ([]*models.Verification, error)
	ListAll(ctx context.Context) ([]*models.Verification, error)
	CountByStatus(ctx context.Context, status models.Status) (int, error)
}

// VerificationFetcher retrieves a full verification document from the
// provider. Any failure is reported as a nil document.
type VerificationFetcher interface {
	GetVerification(ctx context.Context, verificationID string) payload.Payload
}
