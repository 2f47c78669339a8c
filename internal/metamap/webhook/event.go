package webhook

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"simkyc/internal/kyc/models"
	"simkyc/internal/kyc/payload"
	"simkyc/internal/kyc/resolver"
)

// NewEvent builds the audit record for one delivery. p is nil when the body
// was not a JSON object or was rejected before parsing.
func NewEvent(raw []byte, p payload.Payload, signature string, signatureValid *bool) *models.WebhookEvent {
	meta := p.Map("metadata")
	ev := &models.WebhookEvent{
		Provider:       models.ProviderMetaMap,
		EventName:      p.String("eventName"),
		FlowID:         p.String("flowId"),
		VerificationID: p.String("verificationId"),
		IdentityID:     p.String("identityId"),
		Resource:       p.String("resource"),
		RecordID:       meta.String("recordId"),
		Signature:      signature,
		SignatureValid: signatureValid,
		EventTimestamp: parseTimestamp(p.String("timestamp")),
		Metadata:       meta,
		Payload:        p,
		RawPayload:     string(raw),
	}
	if ev.VerificationID == "" {
		ev.VerificationID = VerificationIDFromResource(ev.Resource)
	}
	if id, ok := resolver.RequestID(p); ok {
		ev.ServiceRequestID = &id
	}
	return ev
}

// VerificationIDFromResource returns the last path segment of a resource URL.
func VerificationIDFromResource(resource string) string {
	resource = strings.TrimSpace(resource)
	if i := strings.IndexAny(resource, "?#"); i >= 0 {
		resource = resource[:i]
	}
	resource = strings.TrimRight(resource, "/")
	if resource == "" {
		return ""
	}
	return resource[strings.LastIndex(resource, "/")+1:]
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
