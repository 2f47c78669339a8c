package models

import (
	"time"

	kycmodels "simkyc/internal/kyc/models"
)

// Service request statuses and steps written by the flows.
const (
	StatusStarted               = "started"
	StatusNumberSelected        = "number_selected"
	StatusNumberVerified        = "number_verified"
	StatusNumberNotVerified     = "number_not_verified"
	StatusTermsAccepted         = "terms_accepted"
	StatusRegistrationCompleted = "registration_completed"
	StatusCompleted             = "completed"
	StatusFailed                = "failed"

	StepTerms        = "terms"
	StepNumber       = "number"
	StepOTP          = "otp"
	StepRegistration = "registration"
)

// AvailableNumbers is the fixed eSIM number catalogue.
var AvailableNumbers = []string{"73234567", "73456789", "73321654", "73888999", "73777888", "73555666"}

// RegistrationProfile holds the address and next-of-kin details captured
// during KYC compliance.
type RegistrationProfile struct {
	ID                int64
	ServiceRequestID  int64
	PlotNumber        string
	Ward              string
	Village           string
	City              string
	PostalAddress     string
	NextOfKinName     string
	NextOfKinRelation string
	NextOfKinPhone    string
	Email             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// KYCStart carries the client-supplied fields of a KYC start step.
type KYCStart struct {
	DocumentType   kycmodels.DocumentType
	SessionID      string
	VerificationID string
	IdentityID     string
}

// KYCStatus is the reported state of a request's verification.
type KYCStatus struct {
	Request      *kycmodels.ServiceRequest
	Verification *kycmodels.Verification
	Status       kycmodels.Status
}
