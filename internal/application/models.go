package application

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	// StatusUnknown marks a stored value outside the known lifecycle states.
	StatusUnknown   Status = ""
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
)

// ParseStatus maps a stored status string onto the closed set of states.
// Unrecognised values yield StatusUnknown.
func ParseStatus(value string) Status {
	switch Status(value) {
	case StatusPending, StatusScheduled, StatusCancelled:
		return Status(value)
	default:
		return StatusUnknown
	}
}

// String returns the wire representation of the status.
func (s Status) String() string {
	if s == StatusUnknown {
		return "unknown"
	}
	return string(s)
}

// MarshalText renders the status for JSON encoding.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UpdateMode selects the transition applied by AppointmentService.Update.
type UpdateMode string

const (
	ModeSchedule UpdateMode = "schedule"
	ModeCancel   UpdateMode = "cancel"
)

// Appointment is a patient's request for a physician visit.
type Appointment struct {
	ID                 string
	UserID             string
	PatientID          string
	PrimaryPhysician   string
	Schedule           time.Time
	Status             Status
	Reason             string
	Note               *string
	CancellationReason *string
	IdempotencyKey     *string
	Revision           int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppointmentPage is the repository listing result.
type AppointmentPage struct {
	Items []Appointment
	Total int
}

// CreateAppointmentInput captures the booking form fields.
type CreateAppointmentInput struct {
	UserID           string
	PatientID        string
	PrimaryPhysician string
	Reason           string
	Schedule         time.Time
	Note             *string
	IdempotencyKey   string
}

// AppointmentPatch carries the fields a transition may change. Which fields
// are required depends on the UpdateMode.
type AppointmentPatch struct {
	PrimaryPhysician   string
	Schedule           time.Time
	CancellationReason string
	// ExpectedRevision, when non-zero, must equal the stored revision.
	ExpectedRevision int
}

// UpdateAppointmentParams wraps the data required to transition an appointment.
type UpdateAppointmentParams struct {
	AppointmentID string
	Mode          UpdateMode
	Patch         AppointmentPatch
}

// AppointmentSummary is the admin dashboard view of all appointments.
type AppointmentSummary struct {
	TotalCount     int
	ScheduledCount int
	PendingCount   int
	CancelledCount int
	UnknownCount   int
	Documents      []Appointment
}

// User is an identity in the intake directory.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// CreateUserInput captures the sign-up form fields.
type CreateUserInput struct {
	Name  string
	Email string
	Phone string
}

// Patient is the registration record owned by a user.
type Patient struct {
	ID                        string
	UserID                    string
	Name                      string
	Email                     string
	Phone                     string
	BirthDate                 time.Time
	Gender                    string
	Address                   string
	Occupation                string
	EmergencyContactName      string
	EmergencyContactNumber    string
	PrimaryPhysician          string
	InsuranceProvider         string
	InsurancePolicyNumber     string
	Allergies                 *string
	CurrentMedication         *string
	FamilyMedicalHistory      *string
	PastMedicalHistory        *string
	IdentificationType        *string
	IdentificationNumber      *string
	IdentificationDocumentID  *string
	IdentificationDocumentURL *string
	TreatmentConsent          bool
	DisclosureConsent         bool
	PrivacyConsent            bool
	CreatedAt                 time.Time
}

// RegisterPatientInput captures the registration form fields.
type RegisterPatientInput struct {
	UserID                 string
	Name                   string
	Email                  string
	Phone                  string
	BirthDate              time.Time
	Gender                 string
	Address                string
	Occupation             string
	EmergencyContactName   string
	EmergencyContactNumber string
	PrimaryPhysician       string
	InsuranceProvider      string
	InsurancePolicyNumber  string
	Allergies              *string
	CurrentMedication      *string
	FamilyMedicalHistory   *string
	PastMedicalHistory     *string
	IdentificationType     *string
	IdentificationNumber   *string
	TreatmentConsent       bool
	DisclosureConsent      bool
	PrivacyConsent         bool
}

// Document is an uploaded identification file.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

// FileRef locates a stored blob.
type FileRef struct {
	ID  string
	URL string
}

// MessageRef identifies a message accepted by the notification gateway.
type MessageRef struct {
	ID string
}

// Notification is a text message destined for a user.
type Notification struct {
	ID              string
	AppointmentID   string
	RecipientUserID string
	Body            string
	Attempts        int
	LastError       *string
	NextAttemptAt   time.Time
	CreatedAt       time.Time
}
