package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// signatureHeaders are read in order; the first present one is used.
var signatureHeaders = []string{"x-signature", "x-webhook-signature", "x-metamap-signature"}

// SignatureFromHeaders returns the delivery signature, or "".
func SignatureFromHeaders(h http.Header) string {
	for _, name := range signatureHeaders {
		if v := h.Values(name); len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against body. An empty secret disables
// checking. An empty signature is accepted when a secret is configured.
// Both raw hex and "sha256=<hex>" forms are accepted.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return true
	}
	candidate, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), candidate)
}
