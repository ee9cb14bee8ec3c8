package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/carepulse/internal/application"
)

const (
	maxUploadBytes        = 10 << 20
	patientFormField      = "patient"
	documentFormField     = "identificationDocument"
	birthDateLayout       = "2006-01-02"
	defaultDocContentType = "application/octet-stream"
)

var errInvalidBirthDate = errors.New("birthDate must be a date (YYYY-MM-DD) or RFC 3339 timestamp")

type patientService interface {
	CreateUser(ctx context.Context, input application.CreateUserInput) (application.User, error)
	GetUser(ctx context.Context, userID string) (application.User, error)
	GetPatient(ctx context.Context, userID string) (application.Patient, error)
	RegisterPatient(ctx context.Context, input application.RegisterPatientInput, document *application.Document) (application.Patient, error)
}

type PatientHandler struct {
	service   patientService
	responder responder
	logger    *slog.Logger
}

func NewPatientHandler(service patientService, logger *slog.Logger) *PatientHandler {
	base := defaultLogger(logger)
	return &PatientHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *PatientHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "PatientHandler", operation, attrs...)
}

func (h *PatientHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.log(r.Context(), "CreateUser", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode user request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.CreateUser(r.Context(), application.CreateUserInput{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err != nil {
		h.log(r.Context(), "CreateUser").ErrorContext(r.Context(), "user creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, userResponse{User: toUserDTO(user)})
}

func (h *PatientHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	userID := pathParam(r, userIDParam)
	if userID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidUserID)
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.log(r.Context(), "GetUser", "user_id", userID).WarnContext(r.Context(), "user lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, userResponse{User: toUserDTO(user)})
}

func (h *PatientHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	userID := pathParam(r, userIDParam)
	if userID == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidUserID)
		return
	}

	patient, err := h.service.GetPatient(r.Context(), userID)
	if err != nil {
		h.log(r.Context(), "GetPatient", "user_id", userID).WarnContext(r.Context(), "patient lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, patientResponse{Patient: toPatientDTO(patient)})
}

// RegisterPatient accepts multipart/form-data with a JSON "patient" field and
// an optional "identificationDocument" file.
func (h *PatientHandler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "RegisterPatient")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxJSONBody)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.WarnContext(r.Context(), "failed to parse registration form", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	var req registerPatientRequest
	if err := json.Unmarshal([]byte(r.FormValue(patientFormField)), &req); err != nil {
		logger.WarnContext(r.Context(), "failed to decode patient payload", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	input, err := req.toInput()
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, &application.ValidationError{FieldErrors: map[string]string{"birthDate": err.Error()}})
		return
	}

	document, err := readDocument(r)
	if err != nil {
		logger.WarnContext(r.Context(), "failed to read identification document", "error", err, "error_kind", "bad_request")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	patient, err := h.service.RegisterPatient(r.Context(), input, document)
	if err != nil {
		logger.ErrorContext(r.Context(), "patient registration failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("patient_id", patient.ID).InfoContext(r.Context(), "patient registered")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, patientResponse{Patient: toPatientDTO(patient)})
}

func readDocument(r *http.Request) (*application.Document, error) {
	file, header, err := r.FormFile(documentFormField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(content) > maxUploadBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxUploadBytes)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultDocContentType
	}
	return &application.Document{Filename: header.Filename, ContentType: contentType, Content: content}, nil
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type userDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

type userResponse struct {
	User userDTO `json:"user"`
}

func toUserDTO(u application.User) userDTO {
	return userDTO{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, CreatedAt: u.CreatedAt.UTC()}
}

type registerPatientRequest struct {
	UserID                 string  `json:"userId"`
	Name                   string  `json:"name"`
	Email                  string  `json:"email"`
	Phone                  string  `json:"phone"`
	BirthDate              string  `json:"birthDate"`
	Gender                 string  `json:"gender"`
	Address                string  `json:"address"`
	Occupation             string  `json:"occupation"`
	EmergencyContactName   string  `json:"emergencyContactName"`
	EmergencyContactNumber string  `json:"emergencyContactNumber"`
	PrimaryPhysician       string  `json:"primaryPhysician"`
	InsuranceProvider      string  `json:"insuranceProvider"`
	InsurancePolicyNumber  string  `json:"insurancePolicyNumber"`
	Allergies              *string `json:"allergies,omitempty"`
	CurrentMedication      *string `json:"currentMedication,omitempty"`
	FamilyMedicalHistory   *string `json:"familyMedicalHistory,omitempty"`
	PastMedicalHistory     *string `json:"pastMedicalHistory,omitempty"`
	IdentificationType     *string `json:"identificationType,omitempty"`
	IdentificationNumber   *string `json:"identificationNumber,omitempty"`
	TreatmentConsent       bool    `json:"treatmentConsent"`
	DisclosureConsent      bool    `json:"disclosureConsent"`
	PrivacyConsent         bool    `json:"privacyConsent"`
}

func (r registerPatientRequest) toInput() (application.RegisterPatientInput, error) {
	var birthDate time.Time
	if raw := strings.TrimSpace(r.BirthDate); raw != "" {
		parsed, err := parseBirthDate(raw)
		if err != nil {
			return application.RegisterPatientInput{}, err
		}
		birthDate = parsed
	}

	return application.RegisterPatientInput{
		UserID:                 r.UserID,
		Name:                   r.Name,
		Email:                  r.Email,
		Phone:                  r.Phone,
		BirthDate:              birthDate,
		Gender:                 r.Gender,
		Address:                r.Address,
		Occupation:             r.Occupation,
		EmergencyContactName:   r.EmergencyContactName,
		EmergencyContactNumber: r.EmergencyContactNumber,
		PrimaryPhysician:       r.PrimaryPhysician,
		InsuranceProvider:      r.InsuranceProvider,
		InsurancePolicyNumber:  r.InsurancePolicyNumber,
		Allergies:              r.Allergies,
		CurrentMedication:      r.CurrentMedication,
		FamilyMedicalHistory:   r.FamilyMedicalHistory,
		PastMedicalHistory:     r.PastMedicalHistory,
		IdentificationType:     r.IdentificationType,
		IdentificationNumber:   r.IdentificationNumber,
		TreatmentConsent:       r.TreatmentConsent,
		DisclosureConsent:      r.DisclosureConsent,
		PrivacyConsent:         r.PrivacyConsent,
	}, nil
}

func parseBirthDate(raw string) (time.Time, error) {
	if t, err := time.Parse(birthDateLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, errInvalidBirthDate
}

type patientDTO struct {
	ID                        string    `json:"id"`
	UserID                    string    `json:"userId"`
	Name                      string    `json:"name"`
	Email                     string    `json:"email"`
	Phone                     string    `json:"phone"`
	BirthDate                 string    `json:"birthDate"`
	Gender                    string    `json:"gender"`
	Address                   string    `json:"address"`
	Occupation                string    `json:"occupation"`
	EmergencyContactName      string    `json:"emergencyContactName"`
	EmergencyContactNumber    string    `json:"emergencyContactNumber"`
	PrimaryPhysician          string    `json:"primaryPhysician"`
	InsuranceProvider         string    `json:"insuranceProvider"`
	InsurancePolicyNumber     string    `json:"insurancePolicyNumber"`
	Allergies                 *string   `json:"allergies,omitempty"`
	CurrentMedication         *string   `json:"currentMedication,omitempty"`
	FamilyMedicalHistory      *string   `json:"familyMedicalHistory,omitempty"`
	PastMedicalHistory        *string   `json:"pastMedicalHistory,omitempty"`
	IdentificationType        *string   `json:"identificationType,omitempty"`
	IdentificationNumber      *string   `json:"identificationNumber,omitempty"`
	IdentificationDocumentID  *string   `json:"identificationDocumentId,omitempty"`
	IdentificationDocumentURL *string   `json:"identificationDocumentUrl,omitempty"`
	TreatmentConsent          bool      `json:"treatmentConsent"`
	DisclosureConsent         bool      `json:"disclosureConsent"`
	PrivacyConsent            bool      `json:"privacyConsent"`
	CreatedAt                 time.Time `json:"createdAt"`
}

type patientResponse struct {
	Patient patientDTO `json:"patient"`
}

func toPatientDTO(p application.Patient) patientDTO {
	return patientDTO{
		ID:                        p.ID,
		UserID:                    p.UserID,
		Name:                      p.Name,
		Email:                     p.Email,
		Phone:                     p.Phone,
		BirthDate:                 p.BirthDate.UTC().Format(birthDateLayout),
		Gender:                    p.Gender,
		Address:                   p.Address,
		Occupation:                p.Occupation,
		EmergencyContactName:      p.EmergencyContactName,
		EmergencyContactNumber:    p.EmergencyContactNumber,
		PrimaryPhysician:          p.PrimaryPhysician,
		InsuranceProvider:         p.InsuranceProvider,
		InsurancePolicyNumber:     p.InsurancePolicyNumber,
		Allergies:                 p.Allergies,
		CurrentMedication:         p.CurrentMedication,
		FamilyMedicalHistory:      p.FamilyMedicalHistory,
		PastMedicalHistory:        p.PastMedicalHistory,
		IdentificationType:        p.IdentificationType,
		IdentificationNumber:      p.IdentificationNumber,
		IdentificationDocumentID:  p.IdentificationDocumentID,
		IdentificationDocumentURL: p.IdentificationDocumentURL,
		TreatmentConsent:          p.TreatmentConsent,
		DisclosureConsent:         p.DisclosureConsent,
		PrivacyConsent:            p.PrivacyConsent,
		CreatedAt:                 p.CreatedAt.UTC(),
	}
}
