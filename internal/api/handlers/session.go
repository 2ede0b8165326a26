// Package handlers provides the HTTP surface for draft order sessions.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/carelane/go-moc/internal/catalog"
	"github.com/carelane/go-moc/internal/observability/metrics"
	"github.com/carelane/go-moc/internal/order"
	"github.com/carelane/go-moc/internal/session"
)

// Archiver records accepted submissions. Nil-able in tests.
type Archiver interface {
	ArchiveSubmission(ctx context.Context, res *order.SubmissionResult) (string, error)
}

// SessionHandler serves the draft session endpoints.
type SessionHandler struct {
	sessions *session.Manager
	archiver Archiver
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewSessionHandler creates the handler.
func NewSessionHandler(sessions *session.Manager, archiver Archiver, m *metrics.Metrics, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		sessions: sessions,
		archiver: archiver,
		metrics:  m,
		logger:   logger,
	}
}

// Routes returns the session routes.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Open)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Snapshot)
		r.Delete("/", h.Cancel)
		r.Post("/patient", h.SelectPatient)
		r.Post("/prescription", h.SelectPrescription)
		r.Post("/items", h.AddItem)
		r.Delete("/items/{index}", h.RemoveItem)
		r.Put("/discount", h.SetDiscount)
		r.Put("/details", h.SetDetails)
		r.Post("/submit", h.Submit)
	})
	return r
}

// OpenRequest optionally pre-seeds the draft from a calling context, e.g.
// a "dispense" deep link on the prescription list.
type OpenRequest struct {
	PatientID      int64 `json:"patientId"`
	PrescriptionID int64 `json:"prescriptionId"`
}

// Open starts a new draft session over a fresh catalog snapshot.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req OpenRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	s, err := h.sessions.Open(ctx)
	if err != nil {
		var le *catalog.LoadError
		if errors.As(err, &le) {
			// Catalog unavailable is blocking: no draft without a full
			// snapshot.
			h.jsonError(w, le.Error(), http.StatusServiceUnavailable)
			return
		}
		h.logger.Error("session open failed", zap.Error(err))
		h.jsonError(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	if req.PrescriptionID != 0 {
		s.Controller.PresetPrescription(req.PrescriptionID)
	}
	if req.PatientID != 0 {
		if err := s.Controller.SelectPatient(ctx, req.PatientID); err != nil {
			h.sessions.Close(s.ID)
			h.writeDraftError(w, err)
			return
		}
	}

	h.metrics.SessionsOpened.Inc()
	h.metrics.SessionsActive.Set(float64(h.sessions.Count()))

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessionId": s.ID,
		"snapshot":  s.Controller.Snapshot(),
	})
}

// Snapshot returns the current draft state with computed totals.
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// Cancel discards the draft.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(chi.URLParam(r, "id"))
	h.metrics.SessionsActive.Set(float64(h.sessions.Count()))
	w.WriteHeader(http.StatusNoContent)
}

// SelectPatient switches the draft to a new patient context.
func (h *SessionHandler) SelectPatient(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		PatientID int64 `json:"patientId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.Controller.SelectPatient(r.Context(), req.PatientID); err != nil {
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// SelectPrescription selects a prescription, or walk-in when the id is
// null or zero.
func (h *SessionHandler) SelectPrescription(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		PrescriptionID *int64 `json:"prescriptionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var id int64
	if req.PrescriptionID != nil {
		id = *req.PrescriptionID
	}
	if err := s.Controller.SelectPrescription(id); err != nil {
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// AddItem appends a manual line through the stock check.
func (h *SessionHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req order.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.Controller.AddItem(req); err != nil {
		h.writeDraftError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// RemoveItem removes the line at index; stale indexes are ignored.
func (h *SessionHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.jsonError(w, "invalid index", http.StatusBadRequest)
		return
	}
	s.Controller.RemoveItem(index)
	h.writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// SetDiscount stores the raw discount input.
func (h *SessionHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		DiscountAmount string `json:"discountAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.Controller.SetDiscount(req.DiscountAmount)
	h.writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// SetDetails updates delivery address, phone and notes.
func (h *SessionHandler) SetDetails(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		DeliveryAddress string `json:"deliveryAddress"`
		ContactPhone    string `json:"contactPhone"`
		Notes           string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.Controller.SetDetails(req.DeliveryAddress, req.ContactPhone, req.Notes)
	h.writeJSON(w, http.StatusOK, s.Controller.Snapshot())
}

// Submit validates and submits the draft; on acceptance the session is
// closed and the submission archived.
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	start := time.Now()
	res, err := s.Controller.Submit(r.Context())
	if err != nil {
		h.metrics.OrdersFailed.Inc()
		h.writeDraftError(w, err)
		return
	}
	h.metrics.OrdersSubmitted.Inc()
	h.metrics.SubmitDuration.Observe(time.Since(start).Seconds())

	var submissionID string
	if h.archiver != nil {
		submissionID, err = h.archiver.ArchiveSubmission(r.Context(), res)
		if err != nil {
			// The remote order exists; archive failure must not fail the
			// user's submission.
			h.logger.Error("submission archive failed",
				zap.Int64("remote_order_id", res.Confirmation.OrderID),
				zap.Error(err))
		}
	}

	h.sessions.Close(s.ID)
	h.metrics.SessionsActive.Set(float64(h.sessions.Count()))

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"confirmation": res.Confirmation,
		"submissionId": submissionID,
	})
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return s, true
}

// writeDraftError maps the error taxonomy onto HTTP statuses: validation
// and stock errors are recoverable client errors; collaborator failures are
// upstream errors passed through verbatim.
func (h *SessionHandler) writeDraftError(w http.ResponseWriter, err error) {
	var ve *order.ValidationError
	if errors.As(err, &ve) {
		h.metrics.ValidationFailures.Inc()
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   "validation",
			"reasons": ve.Reasons,
		})
		return
	}

	var se *order.StockError
	if errors.As(err, &se) {
		h.metrics.StockRejections.Inc()
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "stock",
			"message":   se.Error(),
			"available": se.Available,
		})
		return
	}

	var sub *order.SubmissionError
	if errors.As(err, &sub) {
		h.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":   "submission",
			"message": sub.Err.Error(),
		})
		return
	}

	var fe *order.FetchError
	if errors.As(err, &fe) {
		status := http.StatusServiceUnavailable
		if fe.Advisory {
			status = http.StatusOK
		}
		h.writeJSON(w, status, map[string]interface{}{
			"error":    "fetch",
			"resource": fe.Resource,
			"message":  fe.Error(),
		})
		return
	}

	h.logger.Error("unexpected draft error", zap.Error(err))
	h.jsonError(w, "internal error", http.StatusInternalServerError)
}

func (h *SessionHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *SessionHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
