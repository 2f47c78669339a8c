package handler

import (
	"regexp"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"simkyc/internal/flow/models"
	kycmodels "simkyc/internal/kyc/models"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ]{7,16}$`)

type numberRequest struct {
	MSISDN string `json:"msisdn"`
}

func (r *numberRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.MSISDN, validation.Required, validation.Length(1, 20)),
	)
}

type termsRequest struct {
	Accepted *bool `json:"accepted"`
}

func (r *termsRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Accepted, validation.NotNil),
	)
}

type kycStartRequest struct {
	DocumentType   string `json:"document_type"`
	SessionID      string `json:"session_id"`
	VerificationID string `json:"verification_id"`
	IdentityID     string `json:"identity_id"`
}

func (r *kycStartRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.DocumentType, validation.Required, validation.In(string(kycmodels.DocumentOmang), string(kycmodels.DocumentPassport))),
		validation.Field(&r.SessionID, validation.Length(0, 255)),
		validation.Field(&r.VerificationID, validation.Length(0, 255)),
		validation.Field(&r.IdentityID, validation.Length(0, 255)),
	)
}

func (r *kycStartRequest) toModel() models.KYCStart {
	return models.KYCStart{
		DocumentType:   kycmodels.DocumentType(r.DocumentType),
		SessionID:      r.SessionID,
		VerificationID: r.VerificationID,
		IdentityID:     r.IdentityID,
	}
}

type registrationRequest struct {
	PlotNumber        string `json:"plot_number"`
	Ward              string `json:"ward"`
	Village           string `json:"village"`
	City              string `json:"city"`
	PostalAddress     string `json:"postal_address"`
	NextOfKinName     string `json:"next_of_kin_name"`
	NextOfKinRelation string `json:"next_of_kin_relation"`
	NextOfKinPhone    string `json:"next_of_kin_phone"`
	Email             string `json:"email"`
}

func (r *registrationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PlotNumber, validation.Length(0, 255)),
		validation.Field(&r.Ward, validation.Length(0, 255)),
		validation.Field(&r.Village, validation.Length(0, 255)),
		validation.Field(&r.City, validation.Length(0, 255)),
		validation.Field(&r.PostalAddress, validation.Length(0, 255)),
		validation.Field(&r.NextOfKinName, validation.Length(0, 255)),
		validation.Field(&r.NextOfKinRelation, validation.Length(0, 255)),
		validation.Field(&r.NextOfKinPhone, validation.Match(phonePattern)),
		validation.Field(&r.Email, is.Email, validation.Length(0, 255)),
	)
}

func (r *registrationRequest) toModel() models.RegistrationProfile {
	return models.RegistrationProfile{
		PlotNumber:        r.PlotNumber,
		Ward:              r.Ward,
		Village:           r.Village,
		City:              r.City,
		PostalAddress:     r.PostalAddress,
		NextOfKinName:     r.NextOfKinName,
		NextOfKinRelation: r.NextOfKinRelation,
		NextOfKinPhone:    r.NextOfKinPhone,
		Email:             r.Email,
	}
}

type completeRequest struct {
	Verified          *bool  `json:"verified"`
	KYCVerificationID string `json:"kyc_verification_id"`
}

func (r *completeRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Verified, validation.NotNil),
		validation.Field(&r.KYCVerificationID, is.Digit),
	)
}

func (r *completeRequest) verificationID() *int64 {
	if r.KYCVerificationID == "" {
		return nil
	}
	id, err := strconv.ParseInt(r.KYCVerificationID, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
