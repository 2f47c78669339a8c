// Package extract flattens provider payloads into the canonical person
// record and collects media URLs.
package extract

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	strs "simkyc/pkg/platform/strings"
)

const dateLayout = "2006-01-02"

// Alias lists, tried in order for each attribute.
var (
	fullNameKeys       = []string{"fullName", "full_name", "name", "completeName"}
	firstNameKeys      = []string{"firstName", "first_name", "givenName", "forenames", "givenNames"}
	surnameKeys        = []string{"lastName", "surname", "familyName", "last_name"}
	dateOfBirthKeys    = []string{"dateOfBirth", "dob", "birthDate", "date_of_birth"}
	sexKeys            = []string{"sex", "gender", "Gender"}
	countryKeys        = []string{"country", "nationality", "countryOfOrigin", "issuingCountry"}
	documentNumberKeys = []string{"documentNumber", "idNumber", "passportNumber", "omangNumber", "nationalId"}
	expiryDateKeys     = []string{"expiryDate", "expiry_date", "expirationDate", "validUntil", "dateOfExpiry"}

	selfieKeys = []string{"selfieUrl", "selfiePhotoUrl", "selfie"}
)

// Person merges the candidate field sources of p and resolves each attribute.
//
// Sources in ascending priority: details.document.data, details.extractedData,
// step.data and full_verification.documents[0].fields. A later source replaces
// an earlier one key by key.
func Person(p payload.Payload) models.PersonRecord {
	candidate := Candidates(p)

	rec := models.PersonRecord{
		FullName:       PickField(candidate, fullNameKeys...),
		FirstName:      PickField(candidate, firstNameKeys...),
		Surname:        PickField(candidate, surnameKeys...),
		DateOfBirth:    NormalizeDate(PickField(candidate, dateOfBirthKeys...)),
		Sex:            PickField(candidate, sexKeys...),
		Country:        PickField(candidate, countryKeys...),
		DocumentNumber: PickField(candidate, documentNumberKeys...),
		ExpiryDate:     NormalizeDate(PickField(candidate, expiryDateKeys...)),
	}
	if rec.FullName == "" && rec.FirstName != "" && rec.Surname != "" {
		rec.FullName = strings.TrimSpace(rec.FirstName + " " + rec.Surname)
	}
	return rec
}

// Candidates returns the merged field map used by Person.
func Candidates(p payload.Payload) payload.Payload {
	sources := []payload.Payload{
		p.Dig("details", "document", "data"),
		p.Dig("details", "extractedData"),
		p.Dig("step", "data"),
		FirstDocumentFields(p.Map("full_verification")),
	}
	merged := payload.Payload{}
	for _, src := range sources {
		for k, v := range src {
			merged[k] = v
		}
	}
	return merged
}

// FirstDocumentFields returns documents[0].fields of a full verification.
func FirstDocumentFields(full payload.Payload) payload.Payload {
	docs := full.Slice("documents")
	if len(docs) == 0 {
		return nil
	}
	first, ok := docs[0].(map[string]any)
	if !ok {
		return nil
	}
	return payload.Payload(first).Map("fields")
}

// PickField returns the first non-empty value among keys. A value shaped
// {"value": x} is unwrapped once.
func PickField(fields payload.Payload, keys ...string) string {
	for _, k := range keys {
		v, ok := fields[k]
		if !ok {
			continue
		}
		if wrapped, isMap := v.(map[string]any); isMap {
			if inner, has := wrapped["value"]; has {
				v = inner
			}
		}
		if s := payload.Scalar(v); s != "" {
			return s
		}
	}
	return ""
}

// NormalizeDate parses any recognizable date and renders it as a calendar
// date. Unparsable input yields "".
func NormalizeDate(value string) string {
	if value == "" {
		return ""
	}
	t, err := dateparse.ParseIn(value, time.UTC)
	if err != nil {
		return ""
	}
	return t.Format(dateLayout)
}

// Media walks the full verification for the selfie and document photos.
func Media(p payload.Payload) models.Media {
	full := p.Map("full_verification")
	return models.Media{
		SelfieURL:      Selfie(full),
		DocumentPhotos: DocumentPhotos(full),
	}
}

// Selfie returns the first selfie URL found in steps[].data.
func Selfie(full payload.Payload) string {
	for _, raw := range full.Slice("steps") {
		step, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if s := payload.Payload(step).Map("data").FirstString(selfieKeys...); s != "" {
			return s
		}
	}
	return ""
}

// DocumentPhotos collects documents[].photos[] strings, deduplicated in
// first-seen order.
func DocumentPhotos(full payload.Payload) []string {
	var urls []string
	for _, raw := range full.Slice("documents") {
		doc, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for _, photo := range payload.Payload(doc).Slice("photos") {
			if s, isString := photo.(string); isString {
				urls = append(urls, s)
			}
		}
	}
	return strs.DedupeAndTrim(urls)
}
