package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Service types reported on KYC records. The last three only arrive through
// provider metadata.
const (
	ServiceESIMPurchase      = "esim_purchase"
	ServiceSIMSwap           = "sim_swap"
	ServiceKYCCompliance     = "kyc_compliance"
	ServiceNewPhysicalSIM    = "new_physical_sim"
	ServiceSmegaRegistration = "smega_registration"
)

// AdditionalPhoneSlots is the number of add_phone_number_N keys carried
// through from provider metadata.
const AdditionalPhoneSlots = 10

// KYCRecord is the reporting projection of one verification. Nil pointers
// render as JSON null.
type KYCRecord struct {
	ID                  string         `json:"id"`
	MSISDN              *string        `json:"msisdn"`
	Metadata            map[string]any `json:"metadata"`
	Country             *string        `json:"country"`
	CountryAbbreviation *string        `json:"country_abbreviation"`
	FullName            *string        `json:"full_name"`
	FirstName           *string        `json:"first_name"`
	Surname             *string        `json:"surname"`
	DateOfBirth         *string        `json:"date_of_birth"`
	Sex                 *string        `json:"sex"`
	DocumentType        string         `json:"document_type"`
	DocumentNumber      *string        `json:"document_number"`
	PhysicalAddress     string         `json:"physical_address"`
	PostalAddress       *string        `json:"postal_address"`
	DateOfIssue         *string        `json:"date_of_issue"`
	ExpiryDate          *string        `json:"expiry_date"`
	Email               *string        `json:"email"`
	NextOfKinName       *string        `json:"next_of_kin_name"`
	NextOfKinRelation   *string        `json:"next_of_kin_relation"`
	NextOfKinPhone      *string        `json:"next_of_kin_phone"`
	PlotNumber          *string        `json:"plot_number"`
	Ward                *string        `json:"ward"`
	Village             *string        `json:"village"`
	City                *string        `json:"city"`
	SelfieURL           *string        `json:"selfie_url"`
	DocumentPhotoURLs   []string       `json:"document_photo_urls"`
	ServiceType         *string        `json:"service_type"`
	Status              string         `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`

	AdditionalPhones [AdditionalPhoneSlots]*string `json:"-"`
}

type kycRecordFields KYCRecord

// MarshalJSON adds the add_phone_number_1..10 keys next to the struct fields.
func (r KYCRecord) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(kycRecordFields(r))
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, err
	}
	for i, phone := range r.AdditionalPhones {
		encoded, err := json.Marshal(phone)
		if err != nil {
			return nil, err
		}
		out[fmt.Sprintf("add_phone_number_%d", i+1)] = encoded
	}
	return json.Marshal(out)
}

// Summary holds the headline counters.
type Summary struct {
	TotalRequests     int
	CompletedRequests int
	PendingKYC        int
	TotalRevenue      decimal.Decimal
}

// RecordStats aggregates the KYC projections.
type RecordStats struct {
	Total             int `json:"total"`
	Pending           int `json:"pending"`
	Verified          int `json:"verified"`
	Rejected          int `json:"rejected"`
	Expired           int `json:"expired"`
	Omang             int `json:"omang"`
	Passport          int `json:"passport"`
	ESIMPurchase      int `json:"esimPurchase"`
	SIMSwap           int `json:"simSwap"`
	NewPhysicalSIM    int `json:"newPhysicalSim"`
	KYCCompliance     int `json:"kycCompliance"`
	SmegaRegistration int `json:"smegaRegistration"`
	TodayCount        int `json:"todayCount"`
}

// RecentRequest is the dashboard row for one service request.
type RecentRequest struct {
	ID          int64     `json:"id"`
	RequestType string    `json:"request_type"`
	MSISDN      *string   `json:"msisdn"`
	Status      string    `json:"status"`
	CurrentStep string    `json:"current_step"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dashboard is everything the admin dashboard renders.
type Dashboard struct {
	Summary        Summary
	Stats          RecordStats
	Records        []KYCRecord
	RecentRequests []RecentRequest
}
