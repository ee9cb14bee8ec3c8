package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/carepulse/internal/persistence"
)

const patientColumns = `
	id, user_id, name, email, phone, birth_date, gender, address, occupation,
	emergency_contact_name, emergency_contact_number, primary_physician,
	insurance_provider, insurance_policy_number, allergies, current_medication,
	family_medical_history, past_medical_history, identification_type,
	identification_number, identification_document_id, identification_document_url,
	treatment_consent, disclosure_consent, privacy_consent, created_at`

// PatientRepository implements persistence.PatientRepository using SQLite.
type PatientRepository struct {
	pool *ConnectionPool
}

// NewPatientRepository creates a new SQLite patient repository.
func NewPatientRepository(pool *ConnectionPool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

// CreatePatient inserts a patient registration.
func (r *PatientRepository) CreatePatient(ctx context.Context, p persistence.Patient) error {
	if p.ID == "" || p.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.UserID,
		p.Name,
		normalizeEmail(p.Email),
		p.Phone,
		formatTime(p.BirthDate),
		p.Gender,
		p.Address,
		p.Occupation,
		p.EmergencyContactName,
		p.EmergencyContactNumber,
		p.PrimaryPhysician,
		p.InsuranceProvider,
		p.InsurancePolicyNumber,
		nullString(p.Allergies),
		nullString(p.CurrentMedication),
		nullString(p.FamilyMedicalHistory),
		nullString(p.PastMedicalHistory),
		nullString(p.IdentificationType),
		nullString(p.IdentificationNumber),
		nullString(p.IdentificationDocumentID),
		nullString(p.IdentificationDocumentURL),
		p.TreatmentConsent,
		p.DisclosureConsent,
		p.PrivacyConsent,
		formatTime(p.CreatedAt),
	)
	return mapError(err)
}

// GetPatient retrieves a patient by ID.
func (r *PatientRepository) GetPatient(ctx context.Context, id string) (persistence.Patient, error) {
	if id == "" {
		return persistence.Patient{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ?`, id)
	return scanPatient(row)
}

// GetPatientByUserID returns the earliest registration owned by userID.
func (r *PatientRepository) GetPatientByUserID(ctx context.Context, userID string) (persistence.Patient, error) {
	if userID == "" {
		return persistence.Patient{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`, userID)
	return scanPatient(row)
}

func scanPatient(row rowScanner) (persistence.Patient, error) {
	var (
		p                   persistence.Patient
		birthDate           string
		createdAt           string
		allergies           sql.NullString
		medication          sql.NullString
		familyHistory       sql.NullString
		pastHistory         sql.NullString
		identificationType  sql.NullString
		identificationNum   sql.NullString
		identificationDocID sql.NullString
		identificationURL   sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&birthDate,
		&p.Gender,
		&p.Address,
		&p.Occupation,
		&p.EmergencyContactName,
		&p.EmergencyContactNumber,
		&p.PrimaryPhysician,
		&p.InsuranceProvider,
		&p.InsurancePolicyNumber,
		&allergies,
		&medication,
		&familyHistory,
		&pastHistory,
		&identificationType,
		&identificationNum,
		&identificationDocID,
		&identificationURL,
		&p.TreatmentConsent,
		&p.DisclosureConsent,
		&p.PrivacyConsent,
		&createdAt,
	)
	if err != nil {
		return persistence.Patient{}, mapError(err)
	}

	if p.BirthDate, err = parseTime(birthDate); err != nil {
		return persistence.Patient{}, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Patient{}, err
	}
	p.Allergies = stringPtr(allergies)
	p.CurrentMedication = stringPtr(medication)
	p.FamilyMedicalHistory = stringPtr(familyHistory)
	p.PastMedicalHistory = stringPtr(pastHistory)
	p.IdentificationType = stringPtr(identificationType)
	p.IdentificationNumber = stringPtr(identificationNum)
	p.IdentificationDocumentID = stringPtr(identificationDocID)
	p.IdentificationDocumentURL = stringPtr(identificationURL)
	return p, nil
}
