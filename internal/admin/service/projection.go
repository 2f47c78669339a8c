package service

import (
	"strings"
	"time"

	"simkyc/internal/admin/models"
	"simkyc/internal/kyc/extract"
	kycmodels "simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
)

// project builds the reporting row for v. Stored columns win; the stored raw
// response fills the gaps.
func project(v *kycmodels.Verification, typeByRequest map[int64]kycmodels.RequestType) models.KYCRecord {
	raw := v.RawResponse
	meta := raw.Map("metadata")
	full := raw.Map("full_verification")
	fullMeta := full.Map("metadata")
	docFields := extract.FirstDocumentFields(full)

	fromMeta := func(key string) *string {
		return optional(firstNonEmpty(meta.String(key), fullMeta.String(key)))
	}

	rec := models.KYCRecord{
		ID:                  formatID(v.ID),
		MSISDN:              fromMeta("msisdn"),
		Metadata:            map[string]any(meta),
		Country:             optional(v.Person.Country),
		CountryAbbreviation: optional(extract.PickField(docFields, "nationality", "issueCountry")),
		FullName:            optional(firstNonEmpty(v.Person.FullName, extract.PickField(docFields, "fullName", "name"))),
		FirstName:           optional(firstNonEmpty(v.Person.FirstName, extract.PickField(docFields, "firstName", "givenName"))),
		Surname:             optional(firstNonEmpty(v.Person.Surname, extract.PickField(docFields, "surname", "lastName", "familyName"))),
		DateOfBirth:         optional(v.Person.DateOfBirth),
		Sex:                 optional(v.Person.Sex),
		DocumentType:        documentType(v.DocumentType),
		DocumentNumber:      optional(v.Person.DocumentNumber),
		PostalAddress:       fromMeta("postalAddress"),
		DateOfIssue:         optional(extract.PickField(docFields, "emissionDate", "dateOfIssue")),
		ExpiryDate:          optional(v.Person.ExpiryDate),
		Email:               fromMeta("email"),
		NextOfKinName:       fromMeta("nextOfKinName"),
		NextOfKinRelation:   fromMeta("nextOfKinRelation"),
		NextOfKinPhone:      fromMeta("nextOfKinPhone"),
		PlotNumber:          fromMeta("plotNumber"),
		Ward:                fromMeta("ward"),
		Village:             fromMeta("village"),
		City:                fromMeta("city"),
		SelfieURL:           optional(firstNonEmpty(v.SelfieURL, extract.Selfie(full))),
		DocumentPhotoURLs:   v.DocumentPhotos,
		Status:              reportStatus(v.Status),
		CreatedAt:           v.CreatedAt,
		UpdatedAt:           v.UpdatedAt,
	}
	if len(rec.DocumentPhotoURLs) == 0 {
		rec.DocumentPhotoURLs = extract.DocumentPhotos(full)
	}
	if rec.DocumentPhotoURLs == nil {
		rec.DocumentPhotoURLs = []string{}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	var address []string
	for _, part := range []*string{rec.PlotNumber, rec.Ward, rec.Village, rec.City} {
		if part != nil {
			address = append(address, *part)
		}
	}
	rec.PhysicalAddress = strings.Join(address, ", ")

	for i := range rec.AdditionalPhones {
		rec.AdditionalPhones[i] = optional(meta.String("addPhoneNumber" + itoa(i+1)))
	}

	if st := detectServiceType(meta, fullMeta); st != "" {
		rec.ServiceType = &st
	} else if t, ok := typeByRequest[v.ServiceRequestID]; ok {
		st := string(t)
		rec.ServiceType = &st
	}
	return rec
}

// detectServiceType reads serviceType, then flowType, from the webhook
// metadata and maps the known spellings.
func detectServiceType(meta, fullMeta payload.Payload) string {
	value := firstNonEmpty(
		meta.String("serviceType"),
		fullMeta.String("serviceType"),
		meta.String("flowType"),
		fullMeta.String("flowType"),
	)
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "esim_purchase", "buy_esim", "esim":
		return models.ServiceESIMPurchase
	case "sim_swap", "simswap":
		return models.ServiceSIMSwap
	case "new_physical_sim", "physical_sim":
		return models.ServiceNewPhysicalSIM
	case "kyc_compliance":
		return models.ServiceKYCCompliance
	case "smega_registration":
		return models.ServiceSmegaRegistration
	}
	return ""
}

// reportStatus folds manual_review and timeout into pending.
func reportStatus(s kycmodels.Status) string {
	switch kycmodels.Status(strings.ToLower(string(s))) {
	case kycmodels.StatusVerified:
		return string(kycmodels.StatusVerified)
	case kycmodels.StatusRejected:
		return string(kycmodels.StatusRejected)
	case kycmodels.StatusExpired:
		return string(kycmodels.StatusExpired)
	}
	return string(kycmodels.StatusPending)
}

// documentType reports unknown types as omang.
func documentType(d kycmodels.DocumentType) string {
	normalized := kycmodels.DocumentType(strings.ToLower(string(d)))
	if normalized.IsValid() {
		return string(normalized)
	}
	return string(kycmodels.DocumentOmang)
}

func tally(records []models.KYCRecord, todayStart time.Time) models.RecordStats {
	stats := models.RecordStats{Total: len(records)}
	for _, r := range records {
		switch kycmodels.Status(r.Status) {
		case kycmodels.StatusPending:
			stats.Pending++
		case kycmodels.StatusVerified:
			stats.Verified++
		case kycmodels.StatusRejected:
			stats.Rejected++
		case kycmodels.StatusExpired:
			stats.Expired++
		}
		switch kycmodels.DocumentType(r.DocumentType) {
		case kycmodels.DocumentOmang:
			stats.Omang++
		case kycmodels.DocumentPassport:
			stats.Passport++
		}
		if r.ServiceType != nil {
			switch *r.ServiceType {
			case models.ServiceESIMPurchase:
				stats.ESIMPurchase++
			case models.ServiceSIMSwap:
				stats.SIMSwap++
			case models.ServiceNewPhysicalSIM:
				stats.NewPhysicalSIM++
			case models.ServiceKYCCompliance:
				stats.KYCCompliance++
			case models.ServiceSmegaRegistration:
				stats.SmegaRegistration++
			}
		}
		if !r.CreatedAt.IsZero() && !r.CreatedAt.Before(todayStart) {
			stats.TodayCount++
		}
	}
	return stats
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
