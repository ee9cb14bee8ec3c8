package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/carepulse/internal/application"
)

type capturingAppointmentRepo struct {
	created application.Appointment
}

func (c *capturingAppointmentRepo) CreateAppointment(ctx context.Context, a application.Appointment) (application.Appointment, error) {
	c.created = a
	return a, nil
}

func (c *capturingAppointmentRepo) GetAppointment(ctx context.Context, id string) (application.Appointment, error) {
	return application.Appointment{}, application.ErrNotFound
}

func (c *capturingAppointmentRepo) FindAppointmentByIdempotencyKey(ctx context.Context, key string) (application.Appointment, error) {
	return application.Appointment{}, application.ErrNotFound
}

func (c *capturingAppointmentRepo) ListAppointments(ctx context.Context) (application.AppointmentPage, error) {
	return application.AppointmentPage{}, nil
}

func (c *capturingAppointmentRepo) UpdateAppointment(ctx context.Context, a application.Appointment, expectedRevision int) (application.Appointment, error) {
	return a, nil
}

type capturingUserRepo struct {
	created application.User
}

func (c *capturingUserRepo) CreateUser(ctx context.Context, user application.User) (application.User, error) {
	c.created = user
	return user, nil
}

func (c *capturingUserRepo) GetUser(ctx context.Context, id string) (application.User, error) {
	return application.User{}, application.ErrNotFound
}

func (c *capturingUserRepo) GetUserByEmail(ctx context.Context, email string) (application.User, error) {
	return application.User{}, application.ErrNotFound
}

func TestServiceFactoryNewAppointmentService(t *testing.T) {
	factory := NewServiceFactory()
	repo := &capturingAppointmentRepo{}

	svc := factory.NewAppointmentService(AppointmentServiceDeps{Appointments: repo})
	appointment, err := svc.Create(context.Background(), application.CreateAppointmentInput{
		UserID:           "user-1",
		PatientID:        "patient-1",
		PrimaryPhysician: "Dr. Green",
		Reason:           "Annual check-up",
		Schedule:         factory.Clock.Now().Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if appointment.ID != "id-1" {
		t.Fatalf("expected generated ID id-1, got %q", appointment.ID)
	}
	if repo.created.Status != application.StatusPending {
		t.Fatalf("expected pending status, got %q", repo.created.Status)
	}
	if !appointment.CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), appointment.CreatedAt)
	}
}

func TestServiceFactoryNewPatientService(t *testing.T) {
	generator := NewIDGenerator("user")
	factory := NewServiceFactory(WithIDGenerator(generator))
	repo := &capturingUserRepo{}

	svc := factory.NewPatientService(PatientServiceDeps{Users: repo})
	user, err := svc.CreateUser(context.Background(), application.CreateUserInput{
		Name:  "Jane Doe",
		Email: "jane@example.com",
		Phone: "+15551234567",
	})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if user.ID != "user-1" || repo.created.ID != "user-1" {
		t.Fatalf("expected generated ID user-1, got %q / %q", user.ID, repo.created.ID)
	}
}
