package models

import (
	"encoding/json"
	"time"
)

// SubscriberLookup records the whitelist check made at the number step.
type SubscriberLookup struct {
	Exists      bool `json:"exists"`
	Whitelisted bool `json:"whitelisted"`
}

// Metadata is the service request's step log. Known keys are typed; anything
// else a client or provider put there survives in Extra.
type Metadata struct {
	StartedAt               *time.Time        `json:"started_at,omitempty"`
	TermsAccepted           *bool             `json:"terms_accepted,omitempty"`
	TermsAcceptedAt         *time.Time        `json:"terms_accepted_at,omitempty"`
	NumberVerifiedAt        *time.Time        `json:"number_verified_at,omitempty"`
	SubscriberLookup        *SubscriberLookup `json:"subscriber_lookup,omitempty"`
	RegistrationCompletedAt *time.Time        `json:"registration_completed_at,omitempty"`
	KYCStartedAt            *time.Time        `json:"kyc_started_at,omitempty"`
	KYCVerificationID       *int64            `json:"kyc_verification_id,omitempty"`
	CompletedAt             *time.Time        `json:"completed_at,omitempty"`
	FailedAt                *time.Time        `json:"failed_at,omitempty"`
	Source                  string            `json:"source,omitempty"`
	BootstrappedAt          *time.Time        `json:"bootstrapped_at,omitempty"`

	Extra map[string]any `json:"-"`
}

// Merge returns m with every key set in next overriding the same key in m.
// Keys absent from next are preserved.
func (m Metadata) Merge(next Metadata) Metadata {
	out := m
	if next.StartedAt != nil {
		out.StartedAt = next.StartedAt
	}
	if next.TermsAccepted != nil {
		out.TermsAccepted = next.TermsAccepted
	}
	if next.TermsAcceptedAt != nil {
		out.TermsAcceptedAt = next.TermsAcceptedAt
	}
	if next.NumberVerifiedAt != nil {
		out.NumberVerifiedAt = next.NumberVerifiedAt
	}
	if next.SubscriberLookup != nil {
		out.SubscriberLookup = next.SubscriberLookup
	}
	if next.RegistrationCompletedAt != nil {
		out.RegistrationCompletedAt = next.RegistrationCompletedAt
	}
	if next.KYCStartedAt != nil {
		out.KYCStartedAt = next.KYCStartedAt
	}
	if next.KYCVerificationID != nil {
		out.KYCVerificationID = next.KYCVerificationID
	}
	if next.CompletedAt != nil {
		out.CompletedAt = next.CompletedAt
	}
	if next.FailedAt != nil {
		out.FailedAt = next.FailedAt
	}
	if next.Source != "" {
		out.Source = next.Source
	}
	if next.BootstrappedAt != nil {
		out.BootstrappedAt = next.BootstrappedAt
	}
	if len(next.Extra) > 0 {
		extra := make(map[string]any, len(m.Extra)+len(next.Extra))
		for k, v := range m.Extra {
			extra[k] = v
		}
		for k, v := range next.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}

type metadataFields Metadata

// MarshalJSON flattens Extra next to the typed keys. Typed keys win.
func (m Metadata) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metadataFields(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		merged[k] = v
	}
	var typed map[string]any
	if err := json.Unmarshal(known, &typed); err != nil {
		return nil, err
	}
	for k, v := range typed {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON fills typed keys and keeps the rest in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var fields metadataFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownMetadataKeys {
		delete(all, k)
	}
	*m = Metadata(fields)
	if len(all) > 0 {
		m.Extra = all
	}
	return nil
}

var knownMetadataKeys = []string{
	"started_at", "terms_accepted", "terms_accepted_at", "number_verified_at",
	"subscriber_lookup", "registration_completed_at", "kyc_started_at",
	"kyc_verification_id", "completed_at", "failed_at", "source", "bootstrapped_at",
}

// TimePtr is a small helper for metadata timestamps.
func TimePtr(t time.Time) *time.Time {
	return &t
}
