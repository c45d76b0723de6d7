/*
handlers.go - HTTP request handlers

PURPOSE:

	Implements all REST API endpoints. Handlers are thin: they decode the
	request, call the billing service or a telephony helper, and encode the
	response. Business rules live in the billing package.

ENDPOINTS:

	GET  /token              - Mint a voice access token for ?identity=
	POST /voice              - Call-signaling XML for form field To
	POST /send-sms           - Guarded, billed SMS send
	POST /update-balance     - Top-up
	GET  /accounts/{id}      - Balance and transaction list
	POST /admin/reconcile    - Run a drift check now
	GET  /health             - Liveness

ERROR HANDLING:

	Every billing error goes through writeServiceError, which maps the error
	taxonomy to a status code once:
	- ErrWriteFailed           -> 500 (checked first: may wrap NotFound)
	- ErrConfigurationMissing  -> 500
	- ErrNotFound              -> 404
	- ErrInsufficientBalance   -> 400
	- ErrInvalidInput          -> 400
	- ErrProviderError         -> 500
	- anything else            -> 500
	Only 4xx responses carry details; 5xx causes are logged with the request id.

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Route registration
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/voice-bridge/billing"
	"github.com/warp/voice-bridge/telephony"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service     *billing.Service
	Tokens      *telephony.TokenIssuer
	VoiceConfig telephony.VoiceConfig
	Reconciler  *billing.Reconciler

	// StoreName is reported by /health.
	StoreName string

	logger *slog.Logger
}

// NewHandler creates a new handler. Reconciler may be nil, in which case
// /admin/reconcile answers 503.
func NewHandler(svc *billing.Service, tokens *telephony.TokenIssuer, voice telephony.VoiceConfig, reconciler *billing.Reconciler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Service:     svc,
		Tokens:      tokens,
		VoiceConfig: voice,
		Reconciler:  reconciler,
		logger:      logger,
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes the error body. Details carry err only for client errors;
// server-side failures are logged, not echoed.
func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil && status < http.StatusInternalServerError {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a billing error to its HTTP response.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var code, message string

	switch {
	case errors.Is(err, billing.ErrWriteFailed):
		status, code, message = http.StatusInternalServerError, "write_failed", "Failed to update balance"
	case errors.Is(err, billing.ErrConfigurationMissing):
		status, code, message = http.StatusInternalServerError, "configuration_missing", "Provider credentials are not configured"
	case billing.IsNotFound(err):
		status, code, message = http.StatusNotFound, "not_found", "User not found"
	case errors.Is(err, billing.ErrInsufficientBalance):
		status, code, message = http.StatusBadRequest, "insufficient_balance", "Insufficient balance"
	case errors.Is(err, billing.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, "invalid_input", "Invalid request"
	case errors.Is(err, billing.ErrProviderError):
		status, code, message = http.StatusInternalServerError, "provider_error", "Failed to send message"
	default:
		status, code, message = http.StatusInternalServerError, "internal", "Internal server error"
	}

	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "request_id", reqID, "code", code, "error", err)
	} else if billing.IsClientError(err) {
		h.logger.DebugContext(r.Context(), "request rejected",
			"path", r.URL.Path, "request_id", reqID, "code", code, "error", err)
	}
	writeError(w, status, code, message, err)
}

// =============================================================================
// TELEPHONY HANDLERS
// =============================================================================

// IssueToken handles GET /token.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	token, identity, err := h.Tokens.Issue(r.URL.Query().Get("identity"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, Identity: identity})
}

// Voice handles POST /voice. Twilio posts the dialled target as form field To.
func (h *Handler) Voice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid form body", err)
		return
	}

	doc, err := telephony.BuildVoiceResponse(h.VoiceConfig, r.PostForm.Get("To"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// =============================================================================
// BILLING HANDLERS
// =============================================================================

// SendSMS handles POST /send-sms.
func (h *Handler) SendSMS(w http.ResponseWriter, r *http.Request) {
	var req SendSMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return
	}

	res, err := h.Service.SendSMS(r.Context(), billing.SMSRequest{
		UserID: req.UserUID,
		To:     req.To,
		Body:   req.Body,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SendSMSResponse{
		Success: true,
		SID:     res.SID,
		Balance: toFloat(res.Balance),
	})
}

// UpdateBalance handles POST /update-balance.
func (h *Handler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	var req UpdateBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "Invalid request body", err)
		return
	}
	if req.Amount == nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "amount is required", nil)
		return
	}

	balance, err := h.Service.TopUp(r.Context(), billing.TopUpRequest{
		UserID:    req.UserUID,
		Amount:    *req.Amount,
		PaymentID: req.PaymentID,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateBalanceResponse{Success: true, Balance: toFloat(balance)})
}

// GetAccount handles GET /accounts/{id}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.Service.Ledger.Account(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(acc))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Reconcile handles POST /admin/reconcile.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.Reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Reconciler is not configured", nil)
		return
	}
	report, err := h.Reconciler.Run(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDriftReportDTO(report))
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Store: h.StoreName})
}
