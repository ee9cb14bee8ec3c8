package persistence

import "time"

// User represents an identity registered with the intake flow.
type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// Patient represents the registration record owned by a user.
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

// Appointment represents a visit request stored in persistence.
type Appointment struct {
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

// AppointmentPage is a slice of appointments together with the total row count.
type AppointmentPage struct {
	Items []Appointment
	Total int
}

// Notification is an outbound text message awaiting or past delivery.
type Notification struct {
	ID              string
	AppointmentID   string
	RecipientUserID string
	Body            string
	Attempts        int
	LastError       *string
	NextAttemptAt   time.Time
	DeliveredAt     *time.Time
	CreatedAt       time.Time
}
