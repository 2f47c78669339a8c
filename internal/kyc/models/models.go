package models

import (
	"time"

	"simkyc/internal/kyc/payload"
)

// RequestType identifies the onboarding flow a service request belongs to.
type RequestType string

const (
	RequestTypeESIMPurchase  RequestType = "esim_purchase"
	RequestTypeSIMSwap       RequestType = "sim_swap"
	RequestTypeKYCCompliance RequestType = "kyc_compliance"
)

// Status is the canonical verification outcome.
type Status string

const (
	StatusPending      Status = "pending"
	StatusVerified     Status = "verified"
	StatusRejected     Status = "rejected"
	StatusExpired      Status = "expired"
	StatusManualReview Status = "manual_review"
	StatusTimeout      Status = "timeout"
)

// DocumentType is the identity document presented for verification.
type DocumentType string

const (
	DocumentOmang    DocumentType = "omang"
	DocumentPassport DocumentType = "passport"
)

// IsValid reports whether d is a supported document type.
func (d DocumentType) IsValid() bool {
	return d == DocumentOmang || d == DocumentPassport
}

// ProviderMetaMap is the only identity provider in this domain.
const ProviderMetaMap = "metamap"

// Service request statuses and steps written by the reconciliation layer.
const (
	RequestStatusKYCPending  = "kyc_pending"
	RequestStatusKYCVerified = "kyc_verified"
	RequestStatusKYCRejected = "kyc_rejected"

	StepVerification = "verification"
	StepComplete     = "complete"
)

// DefaultFailureReason is recorded when a rejection carries no reason.
const DefaultFailureReason = "Verification rejected"

// ServiceRequest is the single mutable record behind one flow run.
type ServiceRequest struct {
	ID          int64
	RequestType RequestType
	MSISDN      string // 8 local digits, "" when unknown
	Status      string
	CurrentStep string
	OTPSkipped  bool
	Metadata    Metadata
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApplyVerificationOutcome advances the request after a verification reached
// a non-pending status.
func (r *ServiceRequest) ApplyVerificationOutcome(status Status) {
	switch status {
	case StatusVerified:
		r.Status = RequestStatusKYCVerified
		r.CurrentStep = StepComplete
	case StatusRejected:
		r.Status = RequestStatusKYCRejected
		r.CurrentStep = StepVerification
	default:
		r.Status = RequestStatusKYCPending
		r.CurrentStep = StepVerification
	}
}

// Verification is one KYC attempt against the provider. Empty strings stand
// for null columns.
type Verification struct {
	ID               int64
	ServiceRequestID int64
	Provider         string
	SessionID        string
	VerificationID   string
	IdentityID       string
	Status           Status
	DocumentType     DocumentType
	Person           PersonRecord
	FailureReason    string
	SelfieURL        string
	DocumentPhotos   []string
	RawResponse      payload.Payload
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasProgressed reports whether the provider has touched this attempt: any
// provider id, a stored response, or a terminal status.
func (v *Verification) HasProgressed() bool {
	if v.VerificationID != "" || v.IdentityID != "" || v.RawResponse != nil {
		return true
	}
	switch v.Status {
	case StatusVerified, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// PersonRecord is the canonical person/document shape extracted from
// provider payloads. Dates are calendar dates formatted as 2006-01-02.
type PersonRecord struct {
	FullName       string `json:"full_name,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	Surname        string `json:"surname,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
	Sex            string `json:"sex,omitempty"`
	Country        string `json:"country,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	ExpiryDate     string `json:"expiry_date,omitempty"`
}

// Overlay copies every non-empty field of next onto p.
func (p *PersonRecord) Overlay(next PersonRecord) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&p.FullName, next.FullName)
	set(&p.FirstName, next.FirstName)
	set(&p.Surname, next.Surname)
	set(&p.DateOfBirth, next.DateOfBirth)
	set(&p.Sex, next.Sex)
	set(&p.Country, next.Country)
	set(&p.DocumentNumber, next.DocumentNumber)
	set(&p.ExpiryDate, next.ExpiryDate)
}

// Media holds the selfie and document photo URLs found in a full verification.
type Media struct {
	SelfieURL      string
	DocumentPhotos []string
}

// WebhookEvent is the write-once audit record of one webhook delivery.
type WebhookEvent struct {
	ID               int64
	Provider         string
	EventName        string
	FlowID           string
	VerificationID   string
	IdentityID       string
	Resource         string
	RecordID         string
	ServiceRequestID *int64
	Signature        string
	SignatureValid   *bool
	EventTimestamp   *time.Time
	Metadata         payload.Payload
	Payload          payload.Payload
	RawPayload       string
	CreatedAt        time.Time
}
