package main

import (
	"context"
	"time"

	"github.com/example/carepulse/internal/application"
	"github.com/example/carepulse/internal/persistence"
)

type appointmentRepositoryAdapter struct {
	repo persistence.AppointmentRepository
}

func newAppointmentRepositoryAdapter(repo persistence.AppointmentRepository) *appointmentRepositoryAdapter {
	return &appointmentRepositoryAdapter{repo: repo}
}

func (a *appointmentRepositoryAdapter) CreateAppointment(ctx context.Context, appointment application.Appointment) (application.Appointment, error) {
	if err := a.repo.CreateAppointment(ctx, toPersistenceAppointment(appointment)); err != nil {
		return application.Appointment{}, err
	}
	stored, err := a.repo.GetAppointment(ctx, appointment.ID)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(stored), nil
}

func (a *appointmentRepositoryAdapter) GetAppointment(ctx context.Context, id string) (application.Appointment, error) {
	stored, err := a.repo.GetAppointment(ctx, id)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(stored), nil
}

func (a *appointmentRepositoryAdapter) FindAppointmentByIdempotencyKey(ctx context.Context, key string) (application.Appointment, error) {
	stored, err := a.repo.FindAppointmentByIdempotencyKey(ctx, key)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(stored), nil
}

func (a *appointmentRepositoryAdapter) ListAppointments(ctx context.Context) (application.AppointmentPage, error) {
	page, err := a.repo.ListAppointments(ctx, persistence.AppointmentFilter{})
	if err != nil {
		return application.AppointmentPage{}, err
	}
	items := make([]application.Appointment, 0, len(page.Items))
	for _, model := range page.Items {
		items = append(items, toApplicationAppointment(model))
	}
	return application.AppointmentPage{Items: items, Total: page.Total}, nil
}

func (a *appointmentRepositoryAdapter) UpdateAppointment(ctx context.Context, appointment application.Appointment, expectedRevision int) (application.Appointment, error) {
	if err := a.repo.UpdateAppointment(ctx, toPersistenceAppointment(appointment), expectedRevision); err != nil {
		return application.Appointment{}, err
	}
	stored, err := a.repo.GetAppointment(ctx, appointment.ID)
	if err != nil {
		return application.Appointment{}, err
	}
	return toApplicationAppointment(stored), nil
}

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, err
	}
	stored, err := a.repo.GetUser(ctx, user.ID)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) GetUserByEmail(ctx context.Context, email string) (application.User, error) {
	stored, err := a.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

// LookupPhone lets the SMS gateway resolve recipients from the user directory.
func (a *userRepositoryAdapter) LookupPhone(ctx context.Context, userID string) (string, error) {
	stored, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return stored.Phone, nil
}

type patientRepositoryAdapter struct {
	repo persistence.PatientRepository
}

func newPatientRepositoryAdapter(repo persistence.PatientRepository) *patientRepositoryAdapter {
	return &patientRepositoryAdapter{repo: repo}
}

func (a *patientRepositoryAdapter) CreatePatient(ctx context.Context, patient application.Patient) (application.Patient, error) {
	if err := a.repo.CreatePatient(ctx, toPersistencePatient(patient)); err != nil {
		return application.Patient{}, err
	}
	stored, err := a.repo.GetPatient(ctx, patient.ID)
	if err != nil {
		return application.Patient{}, err
	}
	return toApplicationPatient(stored), nil
}

func (a *patientRepositoryAdapter) GetPatientByUserID(ctx context.Context, userID string) (application.Patient, error) {
	stored, err := a.repo.GetPatientByUserID(ctx, userID)
	if err != nil {
		return application.Patient{}, err
	}
	return toApplicationPatient(stored), nil
}

type outboxAdapter struct {
	repo persistence.NotificationOutbox
}

func newOutboxAdapter(repo persistence.NotificationOutbox) *outboxAdapter {
	return &outboxAdapter{repo: repo}
}

func (a *outboxAdapter) EnqueueNotification(ctx context.Context, notification application.Notification) error {
	return a.repo.EnqueueNotification(ctx, persistence.Notification{
		ID:              notification.ID,
		AppointmentID:   notification.AppointmentID,
		RecipientUserID: notification.RecipientUserID,
		Body:            notification.Body,
		Attempts:        notification.Attempts,
		LastError:       cloneString(notification.LastError),
		NextAttemptAt:   notification.NextAttemptAt,
		CreatedAt:       notification.CreatedAt,
	})
}

func (a *outboxAdapter) ListDueNotifications(ctx context.Context, reference time.Time, maxAttempts, limit int) ([]application.Notification, error) {
	models, err := a.repo.ListDueNotifications(ctx, reference, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	notifications := make([]application.Notification, 0, len(models))
	for _, model := range models {
		notifications = append(notifications, application.Notification{
			ID:              model.ID,
			AppointmentID:   model.AppointmentID,
			RecipientUserID: model.RecipientUserID,
			Body:            model.Body,
			Attempts:        model.Attempts,
			LastError:       cloneString(model.LastError),
			NextAttemptAt:   model.NextAttemptAt,
			CreatedAt:       model.CreatedAt,
		})
	}
	return notifications, nil
}

func (a *outboxAdapter) MarkNotificationDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	return a.repo.MarkNotificationDelivered(ctx, id, deliveredAt)
}

func (a *outboxAdapter) MarkNotificationFailed(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time) error {
	return a.repo.MarkNotificationFailed(ctx, id, attempts, lastError, nextAttemptAt)
}

func toApplicationAppointment(model persistence.Appointment) application.Appointment {
	return application.Appointment{
		ID:                 model.ID,
		UserID:             model.UserID,
		PatientID:          model.PatientID,
		PrimaryPhysician:   model.PrimaryPhysician,
		Schedule:           model.Schedule,
		Status:             application.ParseStatus(model.Status),
		Reason:             model.Reason,
		Note:               cloneString(model.Note),
		CancellationReason: cloneString(model.CancellationReason),
		IdempotencyKey:     cloneString(model.IdempotencyKey),
		Revision:           model.Revision,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

func toPersistenceAppointment(appointment application.Appointment) persistence.Appointment {
	return persistence.Appointment{
		ID:                 appointment.ID,
		UserID:             appointment.UserID,
		PatientID:          appointment.PatientID,
		PrimaryPhysician:   appointment.PrimaryPhysician,
		Schedule:           appointment.Schedule,
		Status:             string(appointment.Status),
		Reason:             appointment.Reason,
		Note:               cloneString(appointment.Note),
		CancellationReason: cloneString(appointment.CancellationReason),
		IdempotencyKey:     cloneString(appointment.IdempotencyKey),
		Revision:           appointment.Revision,
		CreatedAt:          appointment.CreatedAt,
		UpdatedAt:          appointment.UpdatedAt,
	}
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:        model.ID,
		Name:      model.Name,
		Email:     model.Email,
		Phone:     model.Phone,
		CreatedAt: model.CreatedAt,
	}
}

func toPersistenceUser(user application.User) persistence.User {
	return persistence.User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		CreatedAt: user.CreatedAt,
	}
}

func toApplicationPatient(model persistence.Patient) application.Patient {
	return application.Patient{
		ID:                        model.ID,
		UserID:                    model.UserID,
		Name:                      model.Name,
		Email:                     model.Email,
		Phone:                     model.Phone,
		BirthDate:                 model.BirthDate,
		Gender:                    model.Gender,
		Address:                   model.Address,
		Occupation:                model.Occupation,
		EmergencyContactName:      model.EmergencyContactName,
		EmergencyContactNumber:    model.EmergencyContactNumber,
		PrimaryPhysician:          model.PrimaryPhysician,
		InsuranceProvider:         model.InsuranceProvider,
		InsurancePolicyNumber:     model.InsurancePolicyNumber,
		Allergies:                 cloneString(model.Allergies),
		CurrentMedication:         cloneString(model.CurrentMedication),
		FamilyMedicalHistory:      cloneString(model.FamilyMedicalHistory),
		PastMedicalHistory:        cloneString(model.PastMedicalHistory),
		IdentificationType:        cloneString(model.IdentificationType),
		IdentificationNumber:      cloneString(model.IdentificationNumber),
		IdentificationDocumentID:  cloneString(model.IdentificationDocumentID),
		IdentificationDocumentURL: cloneString(model.IdentificationDocumentURL),
		TreatmentConsent:          model.TreatmentConsent,
		DisclosureConsent:         model.DisclosureConsent,
		PrivacyConsent:            model.PrivacyConsent,
		CreatedAt:                 model.CreatedAt,
	}
}

func toPersistencePatient(patient application.Patient) persistence.Patient {
	return persistence.Patient{
		ID:                        patient.ID,
		UserID:                    patient.UserID,
		Name:                      patient.Name,
		Email:                     patient.Email,
		Phone:                     patient.Phone,
		BirthDate:                 patient.BirthDate,
		Gender:                    patient.Gender,
		Address:                   patient.Address,
		Occupation:                patient.Occupation,
		EmergencyContactName:      patient.EmergencyContactName,
		EmergencyContactNumber:    patient.EmergencyContactNumber,
		PrimaryPhysician:          patient.PrimaryPhysician,
		InsuranceProvider:         patient.InsuranceProvider,
		InsurancePolicyNumber:     patient.InsurancePolicyNumber,
		Allergies:                 cloneString(patient.Allergies),
		CurrentMedication:         cloneString(patient.CurrentMedication),
		FamilyMedicalHistory:      cloneString(patient.FamilyMedicalHistory),
		PastMedicalHistory:        cloneString(patient.PastMedicalHistory),
		IdentificationType:        cloneString(patient.IdentificationType),
		IdentificationNumber:      cloneString(patient.IdentificationNumber),
		IdentificationDocumentID:  cloneString(patient.IdentificationDocumentID),
		IdentificationDocumentURL: cloneString(patient.IdentificationDocumentURL),
		TreatmentConsent:          patient.TreatmentConsent,
		DisclosureConsent:         patient.DisclosureConsent,
		PrivacyConsent:            patient.PrivacyConsent,
		CreatedAt:                 patient.CreatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
