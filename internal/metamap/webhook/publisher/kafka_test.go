package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	"simkyc/pkg/requestcontext"
)

func TestEncode(t *testing.T) {
	srID := int64(12)
	ev := &models.WebhookEvent{
		ID:               4,
		Provider:         models.ProviderMetaMap,
		EventName:        "verification_completed",
		VerificationID:   "ver-1",
		ServiceRequestID: &srID,
		Payload:          payload.Payload{"eventName": "verification_completed"},
		CreatedAt:        time.Date(2026, 2, 17, 8, 0, 0, 0, time.UTC),
	}
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")

	raw, err := Encode(ctx, ev)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.NotEmpty(t, msg.EventID)
	assert.Equal(t, int64(4), msg.RecordID)
	assert.Equal(t, "ver-1", msg.VerificationID)
	assert.Equal(t, "req-1", msg.RequestID)
	require.NotNil(t, msg.ServiceRequestID)
	assert.Equal(t, srID, *msg.ServiceRequestID)
	assert.JSONEq(t, `{"eventName":"verification_completed"}`, string(msg.Payload))
}
