package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/carepulse/internal/persistence"
)

// UserRepository captures the identity directory operations needed by intake.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
}

// PatientRepository captures the patient store operations needed by intake.
type PatientRepository interface {
	CreatePatient(ctx context.Context, patient Patient) (Patient, error)
	GetPatientByUserID(ctx context.Context, userID string) (Patient, error)
}

// BlobStore stores identification documents.
type BlobStore interface {
	PutFile(ctx context.Context, fileID string, document Document) (FileRef, error)
}

// PatientService handles sign-up and patient registration.
type PatientService struct {
	users       UserRepository
	patients    PatientRepository
	blobs       BlobStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewPatientService wires dependencies for the intake flow. A nil blob store
// causes uploaded documents to be skipped.
func NewPatientService(users UserRepository, patients PatientRepository, blobs BlobStore, idGenerator func() string, now func() time.Time) *PatientService {
	return NewPatientServiceWithLogger(users, patients, blobs, idGenerator, now, nil)
}

// NewPatientServiceWithLogger constructs the intake service with a specified logger.
func NewPatientServiceWithLogger(users UserRepository, patients PatientRepository, blobs BlobStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *PatientService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &PatientService{
		users:       users,
		patients:    patients,
		blobs:       blobs,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *PatientService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PatientService", operation, attrs...)
}

// CreateUser registers a user. When the email is already registered the
// existing user is returned instead.
func (s *PatientService) CreateUser(ctx context.Context, input CreateUserInput) (user User, err error) {
	if s == nil {
		err = fmt.Errorf("PatientService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user repository not configured")
		return
	}

	existed := false
	logger := s.loggerWith(ctx, "CreateUser")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create user", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("user_id", user.ID, "existing", existed).InfoContext(ctx, "user resolved")
	}()

	input = CreateUserInput{
		Name:  strings.TrimSpace(input.Name),
		Email: strings.ToLower(strings.TrimSpace(input.Email)),
		Phone: strings.TrimSpace(input.Phone),
	}
	vErr := validateUser(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	candidate := User{
		ID:        s.idGenerator(),
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
		CreatedAt: s.now(),
	}

	persisted, createErr := s.users.CreateUser(ctx, candidate)
	if createErr == nil {
		user = persisted
		return
	}
	if !errors.Is(createErr, persistence.ErrDuplicate) && !errors.Is(createErr, ErrConflict) {
		err = fmt.Errorf("%w: %w", ErrPersistence, createErr)
		return
	}

	existing, findErr := s.users.GetUserByEmail(ctx, input.Email)
	if findErr != nil {
		err = mapIntakeRepoError(findErr)
		return
	}
	user, existed = existing, true
	return
}

// GetUser returns the user with the given ID.
func (s *PatientService) GetUser(ctx context.Context, userID string) (User, error) {
	if s == nil {
		return User{}, fmt.Errorf("PatientService is nil")
	}
	if s.users == nil {
		return User{}, fmt.Errorf("user repository not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrNotFound
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return User{}, mapIntakeRepoError(err)
	}
	return user, nil
}

// GetPatient returns the first registration owned by userID.
func (s *PatientService) GetPatient(ctx context.Context, userID string) (Patient, error) {
	if s == nil {
		return Patient{}, fmt.Errorf("PatientService is nil")
	}
	if s.patients == nil {
		return Patient{}, fmt.Errorf("patient repository not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return Patient{}, ErrNotFound
	}
	patient, err := s.patients.GetPatientByUserID(ctx, userID)
	if err != nil {
		return Patient{}, mapIntakeRepoError(err)
	}
	return patient, nil
}

// RegisterPatient validates the registration, uploads the identification
// document when one is supplied, and stores the patient.
func (s *PatientService) RegisterPatient(ctx context.Context, input RegisterPatientInput, document *Document) (patient Patient, err error) {
	if s == nil {
		err = fmt.Errorf("PatientService is nil")
		return
	}
	if s.patients == nil {
		err = fmt.Errorf("patient repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "RegisterPatient", "user_id", input.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to register patient", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("patient_id", patient.ID).InfoContext(ctx, "patient registered")
	}()

	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	vErr := validateRegistration(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	patient = Patient{
		ID:                     s.idGenerator(),
		UserID:                 strings.TrimSpace(input.UserID),
		Name:                   strings.TrimSpace(input.Name),
		Email:                  input.Email,
		Phone:                  strings.TrimSpace(input.Phone),
		BirthDate:              input.BirthDate,
		Gender:                 strings.ToLower(strings.TrimSpace(input.Gender)),
		Address:                strings.TrimSpace(input.Address),
		Occupation:             strings.TrimSpace(input.Occupation),
		EmergencyContactName:   strings.TrimSpace(input.EmergencyContactName),
		EmergencyContactNumber: strings.TrimSpace(input.EmergencyContactNumber),
		PrimaryPhysician:       strings.TrimSpace(input.PrimaryPhysician),
		InsuranceProvider:      strings.TrimSpace(input.InsuranceProvider),
		InsurancePolicyNumber:  strings.TrimSpace(input.InsurancePolicyNumber),
		Allergies:              trimmedOptional(input.Allergies),
		CurrentMedication:      trimmedOptional(input.CurrentMedication),
		FamilyMedicalHistory:   trimmedOptional(input.FamilyMedicalHistory),
		PastMedicalHistory:     trimmedOptional(input.PastMedicalHistory),
		IdentificationType:     trimmedOptional(input.IdentificationType),
		IdentificationNumber:   trimmedOptional(input.IdentificationNumber),
		TreatmentConsent:       input.TreatmentConsent,
		DisclosureConsent:      input.DisclosureConsent,
		PrivacyConsent:         input.PrivacyConsent,
		CreatedAt:              createdAt,
	}

	if document != nil {
		switch {
		case len(document.Content) == 0 || strings.TrimSpace(document.Filename) == "":
			logger.WarnContext(ctx, "identification document is empty, skipping upload")
		case s.blobs == nil:
			logger.WarnContext(ctx, "blob storage not configured, skipping upload")
		default:
			ref, putErr := s.blobs.PutFile(ctx, s.idGenerator(), *document)
			if putErr != nil {
				err = fmt.Errorf("%w: upload identification document: %w", ErrPersistence, putErr)
				patient = Patient{}
				return
			}
			patient.IdentificationDocumentID = &ref.ID
			patient.IdentificationDocumentURL = &ref.URL
		}
	}

	persisted, createErr := s.patients.CreatePatient(ctx, patient)
	if createErr != nil {
		err = mapIntakeRepoError(createErr)
		patient = Patient{}
		return
	}
	patient = persisted
	return
}

func mapIntakeRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
