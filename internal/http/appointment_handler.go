package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/carepulse/internal/application"
)

// IdempotencyKeyHeader lets clients retry a booking submission safely.
const IdempotencyKeyHeader = "Idempotency-Key"

type appointmentService interface {
	Create(ctx context.Context, input application.CreateAppointmentInput) (application.Appointment, error)
	Get(ctx context.Context, appointmentID string) (application.Appointment, error)
	Update(ctx context.Context, params application.UpdateAppointmentParams) (application.Appointment, error)
	ListRecentWithSummary(ctx context.Context) (application.AppointmentSummary, error)
}

type AppointmentHandler struct {
	service   appointmentService
	responder responder
	logger    *slog.Logger
}

func NewAppointmentHandler(service appointmentService, logger *slog.Logger) *AppointmentHandler {
	base := defaultLogger(logger)
	return &AppointmentHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AppointmentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "AppointmentHandler", operation, attrs...)
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode appointment request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	logger := h.log(r.Context(), "Create", "user_id", req.UserID, "idempotent", key != "")

	appointment, err := h.service.Create(r.Context(), req.toInput(key))
	if err != nil {
		logger.ErrorContext(r.Context(), "appointment creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("appointment_id", appointment.ID).InfoContext(r.Context(), "appointment created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, appointmentResponse{Appointment: toAppointmentDTO(appointment)})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := pathParam(r, appointmentIDParam)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAppointmentID)
		return
	}

	appointment, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.log(r.Context(), "Get", "appointment_id", id).WarnContext(r.Context(), "appointment lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, appointmentResponse{Appointment: toAppointmentDTO(appointment)})
}

func (h *AppointmentHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, application.ModeSchedule)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, application.ModeCancel)
}

func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, mode application.UpdateMode) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id := pathParam(r, appointmentIDParam)
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidAppointmentID)
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "Update", "appointment_id", id, "mode", string(mode), "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode transition request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Update", "appointment_id", id, "mode", string(mode))

	appointment, err := h.service.Update(r.Context(), application.UpdateAppointmentParams{
		AppointmentID: id,
		Mode:          mode,
		Patch:         req.toPatch(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "appointment update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "appointment updated", "status", appointment.Status.String())
	h.responder.writeJSON(r.Context(), w, http.StatusOK, appointmentResponse{Appointment: toAppointmentDTO(appointment)})
}

func (h *AppointmentHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	summary, err := h.service.ListRecentWithSummary(r.Context())
	if err != nil {
		h.log(r.Context(), "Summary").ErrorContext(r.Context(), "appointment summary failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSummaryDTO(summary))
}

type createAppointmentRequest struct {
	UserID           string    `json:"userId"`
	PatientID        string    `json:"patientId"`
	PrimaryPhysician string    `json:"primaryPhysician"`
	Reason           string    `json:"reason"`
	Schedule         time.Time `json:"schedule"`
	Note             *string   `json:"note,omitempty"`
}

func (r createAppointmentRequest) toInput(idempotencyKey string) application.CreateAppointmentInput {
	return application.CreateAppointmentInput{
		UserID:           r.UserID,
		PatientID:        r.PatientID,
		PrimaryPhysician: r.PrimaryPhysician,
		Reason:           r.Reason,
		Schedule:         r.Schedule,
		Note:             r.Note,
		IdempotencyKey:   idempotencyKey,
	}
}

type transitionRequest struct {
	PrimaryPhysician   string    `json:"primaryPhysician"`
	Schedule           time.Time `json:"schedule"`
	CancellationReason string    `json:"cancellationReason"`
	Revision           int       `json:"revision,omitempty"`
}

func (r transitionRequest) toPatch() application.AppointmentPatch {
	return application.AppointmentPatch{
		PrimaryPhysician:   r.PrimaryPhysician,
		Schedule:           r.Schedule,
		CancellationReason: r.CancellationReason,
		ExpectedRevision:   r.Revision,
	}
}

type appointmentDTO struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	PatientID          string    `json:"patientId"`
	PrimaryPhysician   string    `json:"primaryPhysician"`
	Schedule           time.Time `json:"schedule"`
	Status             string    `json:"status"`
	Reason             string    `json:"reason"`
	Note               *string   `json:"note,omitempty"`
	CancellationReason *string   `json:"cancellationReason,omitempty"`
	Revision           int       `json:"revision"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type appointmentResponse struct {
	Appointment appointmentDTO `json:"appointment"`
}

type summaryResponse struct {
	TotalCount     int              `json:"totalCount"`
	ScheduledCount int              `json:"scheduledCount"`
	PendingCount   int              `json:"pendingCount"`
	CancelledCount int              `json:"cancelledCount"`
	UnknownCount   int              `json:"unknownCount"`
	Documents      []appointmentDTO `json:"documents"`
}

func toAppointmentDTO(a application.Appointment) appointmentDTO {
	return appointmentDTO{
		ID:                 a.ID,
		UserID:             a.UserID,
		PatientID:          a.PatientID,
		PrimaryPhysician:   a.PrimaryPhysician,
		Schedule:           a.Schedule.UTC(),
		Status:             a.Status.String(),
		Reason:             a.Reason,
		Note:               a.Note,
		CancellationReason: a.CancellationReason,
		Revision:           a.Revision,
		CreatedAt:          a.CreatedAt.UTC(),
		UpdatedAt:          a.UpdatedAt.UTC(),
	}
}

func toSummaryDTO(s application.AppointmentSummary) summaryResponse {
	docs := make([]appointmentDTO, 0, len(s.Documents))
	for _, a := range s.Documents {
		docs = append(docs, toAppointmentDTO(a))
	}
	return summaryResponse{
		TotalCount:     s.TotalCount,
		ScheduledCount: s.ScheduledCount,
		PendingCount:   s.PendingCount,
		CancelledCount: s.CancelledCount,
		UnknownCount:   s.UnknownCount,
		Documents:      docs,
	}
}

const maxJSONBody = 1 << 20

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
