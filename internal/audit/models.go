package audit

import "time"

// Action names a flow step recorded in the audit log.
type Action string

const (
	ActionESIMStarted          Action = "esim.started"
	ActionESIMNumberSelected   Action = "esim.number_selected"
	ActionESIMKYCStarted       Action = "esim.kyc_started"
	ActionSIMSwapStarted       Action = "simswap.started"
	ActionSIMSwapNumber        Action = "simswap.number_verified"
	ActionSIMSwapKYCStarted    Action = "simswap.kyc_started"
	ActionComplianceStarted    Action = "kyc_compliance.started"
	ActionComplianceTerms      Action = "kyc_compliance.terms"
	ActionComplianceNumber     Action = "kyc_compliance.number"
	ActionComplianceRegistered Action = "kyc_compliance.registration"
	ActionComplianceKYCStarted Action = "kyc_compliance.kyc_started"
	ActionComplianceCompleted  Action = "kyc_compliance.completed"
	ActionPaymentRecorded      Action = "payment.recorded"
)

// Event is one audit log row. Client fields are filled from the request
// context when the event is emitted.
type Event struct {
	ID               int64
	Action           Action
	ServiceRequestID *int64
	IP               string
	UserAgent        string
	Browser          string
	OS               string
	IsMobile         bool
	RequestID        string
	Payload          map[string]any
	CreatedAt        time.Time
}
