package payment

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/payment-lifecycle/internal"
	"github.com/frahmantamala/payment-lifecycle/internal/tenant"
	"github.com/frahmantamala/payment-lifecycle/internal/transport"
)

// maxCallbackBody bounds how much of a webhook body we will read.
const maxCallbackBody = 1 << 20

// WebhookHandler is the gateway-facing callback endpoint. Its pipeline is
// fixed: resolve tenant from the path token, verify the signature over the
// raw body, parse, then hand off to the lifecycle service. Verification
// always runs against the resolved tenant's secret; nothing in the payload
// is trusted before the signature check passes.
type WebhookHandler struct {
	*transport.BaseHandler
	paymentService ServiceAPI
	gateway        GatewayAPI
	tenants        *tenant.Registry
	callbackBudget time.Duration
	logger         *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, paymentService ServiceAPI, gateway GatewayAPI, tenants *tenant.Registry, callbackBudget time.Duration, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:    baseHandler,
		paymentService: paymentService,
		gateway:        gateway,
		tenants:        tenants,
		callbackBudget: callbackBudget,
		logger:         logger,
	}
}

type callbackResponse struct {
	Status string `json:"status"`
}

// HandleCallback handles POST /api/v1/payments/callback/{tenantToken}.
//
// Duplicate and out-of-order notifications get 200 so the gateway stops
// retrying; only persistence failures return 500. Verification and parse
// failures are recorded as orphan audit entries before the error response.
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	token := chi.URLParam(r, "tenantToken")
	t, ok := h.tenants.ResolveToken(token)
	if !ok {
		h.logger.Warn("callback for unknown tenant token")
		h.HandleError(w, errors.NewUnauthorizedError("unknown callback endpoint", errors.ErrCodeUnknownTenant))
		return
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		h.logger.Error("failed to read callback body", "error", err, "tenant", t.Name)
		h.HandleError(w, errors.NewValidationError("unreadable request body", errors.ErrCodeMalformedPayload))
		return
	}

	if !h.gateway.VerifyCallback(rawBody, r.Header, t.Credentials) {
		h.logger.Warn("callback signature verification failed",
			"tenant", t.Name,
			"body_bytes", len(rawBody))
		h.paymentService.RecordOrphanCallback("", rawBody, "signature verification failed")
		h.HandleError(w, errors.ErrSignatureInvalid)
		return
	}

	data, err := h.gateway.ParseCallback(rawBody)
	if err != nil {
		h.logger.Error("failed to parse callback payload", "error", err, "tenant", t.Name)
		h.paymentService.RecordOrphanCallback("", rawBody, "malformed callback payload")
		h.HandleError(w, errors.ErrMalformedPayload)
		return
	}

	result, err := h.paymentService.ApplyCallback(r.Context(), data)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeTransactionNotFound {
			h.logger.Warn("callback for unknown transaction",
				"tenant", t.Name,
				"external_code", data.ExternalCode)
			h.paymentService.RecordOrphanCallback(data.ExternalCode, rawBody, "unknown transaction code")
			h.HandleError(w, errors.NewNotFoundError("unknown transaction", errors.ErrCodeTransactionNotFound))
			return
		}
		// persistence failure: let the gateway retry delivery
		h.logger.Error("failed to process callback",
			"error", err,
			"tenant", t.Name,
			"external_code", data.ExternalCode)
		h.HandleError(w, errors.NewInternalError("failed to process callback", err))
		return
	}

	elapsed := time.Since(started)
	if h.callbackBudget > 0 && elapsed > h.callbackBudget {
		h.logger.Warn("callback handling exceeded latency budget",
			"tenant", t.Name,
			"external_code", data.ExternalCode,
			"elapsed_ms", elapsed.Milliseconds(),
			"budget_ms", h.callbackBudget.Milliseconds())
	}

	h.logger.Info("callback acknowledged",
		"tenant", t.Name,
		"external_code", data.ExternalCode,
		"outcome", result.Outcome,
		"status", result.Record.Status,
		"elapsed_ms", elapsed.Milliseconds())

	// every accepted delivery is acknowledged the same way; the
	// applied/rejected distinction lives in the audit trail
	h.WriteJSON(w, http.StatusOK, callbackResponse{Status: "acknowledged"})
}
