package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/payment-lifecycle/internal"
	datamodel "github.com/frahmantamala/payment-lifecycle/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-lifecycle/internal/transport"
	"github.com/go-chi/chi"
)

// Handler exposes the collaborator-facing lifecycle operations: link
// creation, waive, refund, and record lookup.
type Handler struct {
	transport.BaseHandler
	PaymentService ServiceAPI
	Logger         *slog.Logger
}

func NewHandler(paymentService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    *transport.NewBaseHandler(logger),
		PaymentService: paymentService,
		Logger:         logger,
	}
}

// CreateLink handles POST /api/v1/payments/link
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("CreateLink: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	if err := req.Validate(); err != nil {
		h.Logger.Error("CreateLink: validation error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	rec, err := h.PaymentService.CreatePaymentLink(r.Context(), &req)
	if err != nil {
		h.Logger.Error("CreateLink: service error",
			"error", err,
			"subject_id", req.SubjectID,
			"tenant", req.Tenant)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, ToView(rec))
}

// Waive handles POST /api/v1/payments/waive
func (h *Handler) Waive(w http.ResponseWriter, r *http.Request) {
	h.manualTransition(w, r, "Waive", h.PaymentService.Waive)
}

// Refund handles POST /api/v1/payments/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.manualTransition(w, r, "Refund", h.PaymentService.Refund)
}

func (h *Handler) manualTransition(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, subjectID string) (*datamodel.PaymentRecord, error)) {
	var req SubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error(op+": failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	if err := req.Validate(); err != nil {
		h.Logger.Error(op+": validation error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	rec, err := fn(r.Context(), req.SubjectID)
	if err != nil {
		h.Logger.Error(op+": service error", "error", err, "subject_id", req.SubjectID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(rec))
}

// GetBySubject handles GET /api/v1/payments/{subjectID}
func (h *Handler) GetBySubject(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	if subjectID == "" {
		h.HandleError(w, errors.NewValidationError("subject id is required", errors.ErrCodeValidationFailed))
		return
	}

	rec, err := h.PaymentService.GetBySubjectID(subjectID)
	if err != nil {
		h.Logger.Error("GetBySubject: service error", "error", err, "subject_id", subjectID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(rec))
}
