package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/carepulse/internal/application"
	"github.com/example/carepulse/internal/persistence"
)

var (
	userCounter         uint64
	patientCounter      uint64
	appointmentCounter  uint64
	notificationCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic user record that can be materialised
// for application or persistence tests.
type UserFixture struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:        id,
		Name:      fmt.Sprintf("User %03d", idx),
		Email:     fmt.Sprintf("%s@example.com", id),
		Phone:     fmt.Sprintf("+1555%07d", idx),
		CreatedAt: referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
	}
}

// WithUserEmail overrides the generated email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) {
		f.Email = email
	}
}

// WithUserPhone overrides the generated phone number.
func WithUserPhone(phone string) UserOption {
	return func(f *UserFixture) {
		f.Phone = phone
	}
}

// WithUserCreatedAt sets the created timestamp on the fixture.
func WithUserCreatedAt(t time.Time) UserOption {
	return func(f *UserFixture) {
		f.CreatedAt = t
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{ID: f.ID, Name: f.Name, Email: f.Email, Phone: f.Phone, CreatedAt: f.CreatedAt}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{ID: f.ID, Name: f.Name, Email: f.Email, Phone: f.Phone, CreatedAt: f.CreatedAt}
}

// ---------------------------- Patient fixtures ---------------------------

// PatientFixture represents a deterministic registration record.
type PatientFixture struct {
	ID                  string
	UserID              string
	Name                string
	Email               string
	Phone               string
	BirthDate           time.Time
	Gender              string
	PrimaryPhysician    string
	Allergies           *string
	IdentificationDocID *string
	IdentificationURL   *string
	CreatedAt           time.Time
}

// PatientOption configures the generated patient fixture.
type PatientOption func(*PatientFixture)

// NewPatientFixture returns a deterministic patient fixture with optional overrides.
func NewPatientFixture(opts ...PatientOption) PatientFixture {
	idx := atomic.AddUint64(&patientCounter, 1)
	fixture := PatientFixture{
		ID:               fmt.Sprintf("patient-%03d", idx),
		UserID:           fmt.Sprintf("user-%03d", idx),
		Name:             fmt.Sprintf("Patient %03d", idx),
		Email:            fmt.Sprintf("patient-%03d@example.com", idx),
		Phone:            fmt.Sprintf("+1555%07d", idx),
		BirthDate:        time.Date(1990, time.May, 4, 0, 0, 0, 0, time.UTC),
		Gender:           "female",
		PrimaryPhysician: "Dr. Green",
		CreatedAt:        referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithPatientID overrides the generated patient ID.
func WithPatientID(id string) PatientOption {
	return func(f *PatientFixture) {
		f.ID = id
	}
}

// WithPatientUser links the patient to userID.
func WithPatientUser(userID string) PatientOption {
	return func(f *PatientFixture) {
		f.UserID = userID
	}
}

// WithPatientCreatedAt sets the created timestamp on the fixture.
func WithPatientCreatedAt(t time.Time) PatientOption {
	return func(f *PatientFixture) {
		f.CreatedAt = t
	}
}

// WithPatientDocument attaches an identification document reference.
func WithPatientDocument(id, url string) PatientOption {
	return func(f *PatientFixture) {
		f.IdentificationDocID = &id
		f.IdentificationURL = &url
	}
}

// WithPatientAllergies sets the optional allergies field.
func WithPatientAllergies(allergies string) PatientOption {
	return func(f *PatientFixture) {
		f.Allergies = &allergies
	}
}

// Application returns the fixture as an application.Patient value.
func (f PatientFixture) Application() application.Patient {
	return application.Patient{
		ID:                        f.ID,
		UserID:                    f.UserID,
		Name:                      f.Name,
		Email:                     f.Email,
		Phone:                     f.Phone,
		BirthDate:                 f.BirthDate,
		Gender:                    f.Gender,
		Address:                   "1 Main St",
		Occupation:                "Engineer",
		EmergencyContactName:      "Sam Doe",
		EmergencyContactNumber:    "+15559999999",
		PrimaryPhysician:          f.PrimaryPhysician,
		InsuranceProvider:         "Acme Health",
		InsurancePolicyNumber:     "POL-1",
		Allergies:                 cloneString(f.Allergies),
		IdentificationDocumentID:  cloneString(f.IdentificationDocID),
		IdentificationDocumentURL: cloneString(f.IdentificationURL),
		TreatmentConsent:          true,
		DisclosureConsent:         true,
		PrivacyConsent:            true,
		CreatedAt:                 f.CreatedAt,
	}
}

// Persistence returns the fixture as a persistence.Patient value.
func (f PatientFixture) Persistence() persistence.Patient {
	p := f.Application()
	return persistence.Patient{
		ID:                        p.ID,
		UserID:                    p.UserID,
		Name:                      p.Name,
		Email:                     p.Email,
		Phone:                     p.Phone,
		BirthDate:                 p.BirthDate,
		Gender:                    p.Gender,
		Address:                   p.Address,
		Occupation:                p.Occupation,
		EmergencyContactName:      p.EmergencyContactName,
		EmergencyContactNumber:    p.EmergencyContactNumber,
		PrimaryPhysician:          p.PrimaryPhysician,
		InsuranceProvider:         p.InsuranceProvider,
		InsurancePolicyNumber:     p.InsurancePolicyNumber,
		Allergies:                 p.Allergies,
		IdentificationDocumentID:  p.IdentificationDocumentID,
		IdentificationDocumentURL: p.IdentificationDocumentURL,
		TreatmentConsent:          p.TreatmentConsent,
		DisclosureConsent:         p.DisclosureConsent,
		PrivacyConsent:            p.PrivacyConsent,
		CreatedAt:                 p.CreatedAt,
	}
}

// -------------------------- Appointment fixtures -------------------------

// AppointmentFixture represents a deterministic appointment record.
type AppointmentFixture struct {
	ID                 string
	UserID             string
	PatientID          string
	PrimaryPhysician   string
	Schedule           time.Time
	Status             string
	Reason             string
	Note               *string
	CancellationReason *string
	IdempotencyKey     *string
	Revision           int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppointmentOption configures the generated appointment fixture.
type AppointmentOption func(*AppointmentFixture)

// NewAppointmentFixture returns a pending appointment with optional overrides.
func NewAppointmentFixture(opts ...AppointmentOption) AppointmentFixture {
	idx := atomic.AddUint64(&appointmentCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := AppointmentFixture{
		ID:               fmt.Sprintf("appointment-%03d", idx),
		UserID:           fmt.Sprintf("user-%03d", idx),
		PatientID:        fmt.Sprintf("patient-%03d", idx),
		PrimaryPhysician: "Dr. Green",
		Schedule:         created.Add(72 * time.Hour),
		Status:           string(application.StatusPending),
		Reason:           "Annual check-up",
		Revision:         1,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAppointmentID overrides the generated appointment ID.
func WithAppointmentID(id string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.ID = id
	}
}

// WithAppointmentOwner sets the user and patient the appointment belongs to.
func WithAppointmentOwner(userID, patientID string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.UserID = userID
		f.PatientID = patientID
	}
}

// WithAppointmentStatus overrides the stored status string.
func WithAppointmentStatus(status string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Status = status
	}
}

// WithAppointmentSchedule overrides the visit time.
func WithAppointmentSchedule(t time.Time) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Schedule = t
	}
}

// WithAppointmentIdempotencyKey records the submission key.
func WithAppointmentIdempotencyKey(key string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.IdempotencyKey = &key
	}
}

// WithAppointmentCancellation marks the appointment cancelled with reason.
func WithAppointmentCancellation(reason string) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Status = string(application.StatusCancelled)
		f.CancellationReason = &reason
	}
}

// WithAppointmentCreatedAt sets both timestamps on the fixture.
func WithAppointmentCreatedAt(t time.Time) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.CreatedAt = t
		f.UpdatedAt = t
	}
}

// WithAppointmentRevision overrides the revision counter.
func WithAppointmentRevision(revision int) AppointmentOption {
	return func(f *AppointmentFixture) {
		f.Revision = revision
	}
}

// Application returns the fixture as an application.Appointment value.
func (f AppointmentFixture) Application() application.Appointment {
	return application.Appointment{
		ID:                 f.ID,
		UserID:             f.UserID,
		PatientID:          f.PatientID,
		PrimaryPhysician:   f.PrimaryPhysician,
		Schedule:           f.Schedule,
		Status:             application.ParseStatus(f.Status),
		Reason:             f.Reason,
		Note:               cloneString(f.Note),
		CancellationReason: cloneString(f.CancellationReason),
		IdempotencyKey:     cloneString(f.IdempotencyKey),
		Revision:           f.Revision,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.UpdatedAt,
	}
}

// Persistence returns the fixture as a persistence.Appointment value.
func (f AppointmentFixture) Persistence() persistence.Appointment {
	return persistence.Appointment{
		ID:                 f.ID,
		UserID:             f.UserID,
		PatientID:          f.PatientID,
		PrimaryPhysician:   f.PrimaryPhysician,
		Schedule:           f.Schedule,
		Status:             f.Status,
		Reason:             f.Reason,
		Note:               cloneString(f.Note),
		CancellationReason: cloneString(f.CancellationReason),
		IdempotencyKey:     cloneString(f.IdempotencyKey),
		Revision:           f.Revision,
		CreatedAt:          f.CreatedAt,
		UpdatedAt:          f.UpdatedAt,
	}
}

// ------------------------- Notification fixtures -------------------------

// NotificationFixture represents a queued outbound text message.
type NotificationFixture struct {
	ID              string
	AppointmentID   string
	RecipientUserID string
	Body            string
	Attempts        int
	NextAttemptAt   time.Time
	CreatedAt       time.Time
}

// NotificationOption configures the generated notification fixture.
type NotificationOption func(*NotificationFixture)

// NewNotificationFixture returns a notification due at ReferenceTime.
func NewNotificationFixture(opts ...NotificationOption) NotificationFixture {
	idx := atomic.AddUint64(&notificationCounter, 1)
	fixture := NotificationFixture{
		ID:              fmt.Sprintf("notification-%03d", idx),
		AppointmentID:   fmt.Sprintf("appointment-%03d", idx),
		RecipientUserID: fmt.Sprintf("user-%03d", idx),
		Body:            "Your appointment is confirmed.",
		NextAttemptAt:   referenceTime,
		CreatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithNotificationID overrides the generated notification ID.
func WithNotificationID(id string) NotificationOption {
	return func(f *NotificationFixture) {
		f.ID = id
	}
}

// WithNotificationDue sets the next attempt time.
func WithNotificationDue(t time.Time) NotificationOption {
	return func(f *NotificationFixture) {
		f.NextAttemptAt = t
	}
}

// WithNotificationAttempts sets the number of failed attempts so far.
func WithNotificationAttempts(attempts int) NotificationOption {
	return func(f *NotificationFixture) {
		f.Attempts = attempts
	}
}

// Application returns the fixture as an application.Notification value.
func (f NotificationFixture) Application() application.Notification {
	return application.Notification{
		ID:              f.ID,
		AppointmentID:   f.AppointmentID,
		RecipientUserID: f.RecipientUserID,
		Body:            f.Body,
		Attempts:        f.Attempts,
		NextAttemptAt:   f.NextAttemptAt,
		CreatedAt:       f.CreatedAt,
	}
}

// Persistence returns the fixture as a persistence.Notification value.
func (f NotificationFixture) Persistence() persistence.Notification {
	return persistence.Notification{
		ID:              f.ID,
		AppointmentID:   f.AppointmentID,
		RecipientUserID: f.RecipientUserID,
		Body:            f.Body,
		Attempts:        f.Attempts,
		NextAttemptAt:   f.NextAttemptAt,
		CreatedAt:       f.CreatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
