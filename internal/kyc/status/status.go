// Package status maps provider and stored status vocabularies onto the
// canonical verification status.
//
// Two mappings exist and they intentionally disagree: Normalize is used when
// reporting a stored verification and can yield manual_review and timeout;
// MapProvider is used when ingesting a fresh provider result and folds review
// states into rejected.
package status

import (
	"strings"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
)

const eventVerificationExpired = "verification_expired"

// Normalize derives the canonical status for a stored verification. A status
// that earlier processing already finalized always wins over the raw payload.
func Normalize(stored string, raw payload.Payload) models.Status {
	switch strings.ToLower(strings.TrimSpace(stored)) {
	case "verified":
		return models.StatusVerified
	case "rejected":
		return models.StatusRejected
	case "manual_review":
		return models.StatusManualReview
	case "expired", "timeout":
		return models.StatusTimeout
	}

	rawStatus := strings.ToLower(raw.FirstString("status", "identityStatus"))
	if isReviewState(rawStatus) || rawStatus == "manual_review" {
		return models.StatusManualReview
	}

	if strings.ToLower(raw.String("eventName")) == eventVerificationExpired || rawStatus == "expired" {
		return models.StatusTimeout
	}

	return models.StatusPending
}

// MapProvider maps a status reported directly by the provider.
func MapProvider(providerStatus string) models.Status {
	s := strings.ToLower(strings.TrimSpace(providerStatus))
	switch {
	case s == "verified":
		return models.StatusVerified
	case s == "rejected" || isReviewState(s):
		return models.StatusRejected
	case s == "expired":
		return models.StatusExpired
	default:
		return models.StatusPending
	}
}

func isReviewState(s string) bool {
	switch s {
	case "reviewneeded", "review_needed", "review":
		return true
	}
	return false
}
