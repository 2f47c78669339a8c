package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataMerge(t *testing.T) {
	started := time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC)
	kycStarted := started.Add(time.Hour)
	firstID, secondID := int64(3), int64(4)

	base := Metadata{
		StartedAt:         &started,
		KYCVerificationID: &firstID,
		Extra:             map[string]any{"channel": "web"},
	}

	merged := base.Merge(Metadata{
		KYCStartedAt:      &kycStarted,
		KYCVerificationID: &secondID,
		Extra:             map[string]any{"campaign": "feb"},
	})

	assert.Equal(t, &started, merged.StartedAt, "keys absent from next are preserved")
	assert.Equal(t, &kycStarted, merged.KYCStartedAt)
	assert.Equal(t, int64(4), *merged.KYCVerificationID, "same-named keys are overridden")
	assert.Equal(t, map[string]any{"channel": "web", "campaign": "feb"}, merged.Extra)
	assert.Equal(t, int64(3), *base.KYCVerificationID, "receiver is not mutated")
}

func TestMetadataJSONKeepsUnknownKeys(t *testing.T) {
	raw := []byte(`{"started_at":"2026-02-17T09:00:00Z","kyc_verification_id":7,"utm_source":"sms"}`)

	var m Metadata
	require.NoError(t, json.Unmarshal(raw, &m))
	require.NotNil(t, m.KYCVerificationID)
	assert.Equal(t, int64(7), *m.KYCVerificationID)
	assert.Equal(t, "sms", m.Extra["utm_source"])
	assert.NotContains(t, m.Extra, "started_at")

	out, err := json.Marshal(m)
	require.NoError(t, err)

	var roundTrip map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTrip))
	assert.Equal(t, "sms", roundTrip["utm_source"])
	assert.Equal(t, float64(7), roundTrip["kyc_verification_id"])
}
