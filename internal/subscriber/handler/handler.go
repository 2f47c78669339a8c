package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"simkyc/internal/subscriber/models"
	dErrors "simkyc/pkg/domain-errors"
	"simkyc/pkg/platform/httputil"
	"simkyc/pkg/requestcontext"
)

// Service defines the subscriber operations exposed over HTTP.
type Service interface {
	Lookup(ctx context.Context, raw string) (models.Lookup, error)
	Upload(ctx context.Context, raw []string) (*models.UploadResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the subscriber routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/subscriber-lookup", h.handleLookup)
	r.Post("/subscriber-upload", h.handleUpload)
}

type lookupRequest struct {
	MSISDN string `json:"msisdn"`
}

func (r *lookupRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.MSISDN, validation.Required, validation.Length(1, 20)),
	)
}

type lookupDetails struct {
	RecordExists bool `json:"record_exists"`
	Whitelisted  bool `json:"is_whitelisted"`
	Bypassed     bool `json:"bypassed_due_to_empty_seed"`
}

type lookupResponse struct {
	httputil.Envelope
	MSISDN  string        `json:"msisdn"`
	Exists  bool          `json:"exists"`
	Details lookupDetails `json:"details"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[lookupRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Lookup(ctx, req.MSISDN)
	if err != nil {
		h.fail(ctx, w, "subscriber lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, lookupResponse{
		Envelope: httputil.OK(),
		MSISDN:   res.MSISDN,
		Exists:   res.Eligible(),
		Details: lookupDetails{
			RecordExists: res.RecordExists,
			Whitelisted:  res.IsWhitelisted,
			Bypassed:     res.Bypassed,
		},
	})
}

type uploadRequest struct {
	PhoneNumbers []string `json:"phoneNumbers"`
	MSISDN       []string `json:"msisdn"`
}

func (r *uploadRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PhoneNumbers, validation.Each(validation.Length(0, 30))),
		validation.Field(&r.MSISDN, validation.Each(validation.Length(0, 30))),
	)
}

func (r *uploadRequest) numbers() []string {
	if len(r.PhoneNumbers) > 0 {
		return r.PhoneNumbers
	}
	return r.MSISDN
}

type uploadSummary struct {
	Received          int `json:"received"`
	Normalized        int `json:"normalized"`
	Unique            int `json:"unique"`
	Inserted          int `json:"inserted"`
	Updated           int `json:"updated"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	Invalid           int `json:"invalid"`
}

type uploadLists struct {
	Inserted []string `json:"inserted"`
	Updated  []string `json:"updated"`
	Invalid  []string `json:"invalid"`
}

type uploadResponse struct {
	httputil.Envelope
	Summary uploadSummary `json:"summary"`
	MSISDN  uploadLists   `json:"msisdn"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[uploadRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.Upload(ctx, req.numbers())
	if err != nil {
		h.fail(ctx, w, "subscriber upload failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, uploadResponse{
		Envelope: httputil.OK(),
		Summary: uploadSummary{
			Received:          res.Received,
			Normalized:        res.Normalized,
			Unique:            res.Unique,
			Inserted:          len(res.Inserted),
			Updated:           len(res.Updated),
			DuplicatesRemoved: res.DuplicatesRemoved,
			Invalid:           len(res.Invalid),
		},
		MSISDN: uploadLists{
			Inserted: nonNil(res.Inserted),
			Updated:  nonNil(res.Updated),
			Invalid:  nonNil(res.Invalid),
		},
	})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
