package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	kycmodels "simkyc/internal/kyc/models"
	"simkyc/pkg/platform/httputil"
)

func (h *Handler) registerCompliance(r chi.Router) {
	r.Post("/start", h.handleComplianceStart)
	r.Post("/{id}/terms", h.handleTerms)
	r.Post("/{id}/number", h.handleComplianceNumber)
	r.Post("/{id}/registration", h.handleRegistration)
	r.Get("/{id}/registration", h.handleGetRegistration)
	r.Post("/{id}/kyc/start", h.startKYC(kycmodels.RequestTypeKYCCompliance))
	r.Get("/{id}/status", h.handleComplianceStatus)
	r.Post("/{id}/complete", h.handleComplete)
}

func (h *Handler) handleComplianceStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sr, err := h.service.StartCompliance(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to start kyc compliance", err)
		return
	}
	resp := newStepResponse(sr)
	resp.Message = "KYC compliance flow started"
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleTerms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[termsRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sr, err := h.service.AcceptTerms(ctx, chi.URLParam(r, "id"), *req.Accepted)
	if err != nil {
		h.fail(ctx, w, "failed to accept terms", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newStepResponse(sr))
}

func (h *Handler) handleComplianceNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[numberRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sr, err := h.service.VerifyNumber(ctx, chi.URLParam(r, "id"), req.MSISDN)
	if err != nil {
		h.fail(ctx, w, "failed to verify number", err)
		return
	}
	resp := newStepResponse(sr)
	resp.MSISDN = sr.MSISDN
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[registrationRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sr, err := h.service.Register(ctx, chi.URLParam(r, "id"), req.toModel())
	if err != nil {
		h.fail(ctx, w, "failed to save registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newStepResponse(sr))
}

type profileData struct {
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

type profileResponse struct {
	httputil.Envelope
	RequestID string      `json:"request_id"`
	Profile   profileData `json:"profile"`
}

func (h *Handler) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.service.Profile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "failed to load registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profileResponse{
		Envelope:  httputil.OK(),
		RequestID: formatID(p.ServiceRequestID),
		Profile: profileData{
			PlotNumber:        p.PlotNumber,
			Ward:              p.Ward,
			Village:           p.Village,
			City:              p.City,
			PostalAddress:     p.PostalAddress,
			NextOfKinName:     p.NextOfKinName,
			NextOfKinRelation: p.NextOfKinRelation,
			NextOfKinPhone:    p.NextOfKinPhone,
			Email:             p.Email,
		},
	})
}

type verificationData struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	DocumentType   *string `json:"document_type"`
	FailureReason  *string `json:"failure_reason"`
	VerificationID *string `json:"verification_id"`
	IdentityID     *string `json:"identity_id"`
}

type complianceStatusResponse struct {
	httputil.Envelope
	RequestID     string            `json:"request_id"`
	RequestStatus string            `json:"request_status"`
	CurrentStep   string            `json:"current_step"`
	Status        string            `json:"status"`
	Verification  *verificationData `json:"verification"`
}

func (h *Handler) handleComplianceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.service.ComplianceStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "failed to load kyc status", err)
		return
	}
	resp := complianceStatusResponse{
		Envelope:      httputil.OK(),
		RequestID:     formatID(st.Request.ID),
		RequestStatus: st.Request.Status,
		CurrentStep:   st.Request.CurrentStep,
		Status:        string(st.Status),
	}
	if v := st.Verification; v != nil {
		resp.Verification = &verificationData{
			ID:             formatID(v.ID),
			Status:         string(st.Status),
			DocumentType:   optional(string(v.DocumentType)),
			FailureReason:  optional(v.FailureReason),
			VerificationID: optional(v.VerificationID),
			IdentityID:     optional(v.IdentityID),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeAndValidate[completeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sr, err := h.service.Complete(ctx, chi.URLParam(r, "id"), *req.Verified, req.verificationID())
	if err != nil {
		h.fail(ctx, w, "failed to complete kyc request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newStepResponse(sr))
}
