package models

import "time"

// Subscriber is a known phone number and its whitelist flag. MSISDN may be
// stored with or without the country code.
type Subscriber struct {
	ID            int64
	MSISDN        string
	FirstName     string
	LastName      string
	IDType        string
	IDNumber      string
	Status        string
	IsWhitelisted bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Lookup is the outcome of a whitelist check.
type Lookup struct {
	MSISDN        string
	RecordExists  bool
	IsWhitelisted bool
	Bypassed      bool
}

// Eligible reports whether the number may continue.
func (l Lookup) Eligible() bool {
	return l.Bypassed || (l.RecordExists && l.IsWhitelisted)
}

// UploadResult summarizes a bulk whitelist upload.
type UploadResult struct {
	Received          int
	Normalized        int
	Unique            int
	Inserted          []string
	Updated           []string
	Invalid           []string
	DuplicatesRemoved int
}
