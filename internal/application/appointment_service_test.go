package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/carepulse/internal/persistence"
)

type appointmentRepoStub struct {
	mu      sync.Mutex
	records map[string]Appointment
	order   []string

	createErr error
	listErr   error
	updateErr error
	total     int
}

func newAppointmentRepoStub(seed ...Appointment) *appointmentRepoStub {
	r := &appointmentRepoStub{records: make(map[string]Appointment)}
	for _, a := range seed {
		r.records[a.ID] = a
		r.order = append(r.order, a.ID)
	}
	return r
}

func (r *appointmentRepoStub) CreateAppointment(ctx context.Context, a Appointment) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return Appointment{}, r.createErr
	}
	if _, exists := r.records[a.ID]; exists {
		return Appointment{}, persistence.ErrDuplicate
	}
	if a.IdempotencyKey != nil {
		for _, existing := range r.records {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *a.IdempotencyKey {
				return Appointment{}, persistence.ErrDuplicate
			}
		}
	}
	r.records[a.ID] = a
	r.order = append(r.order, a.ID)
	return a, nil
}

func (r *appointmentRepoStub) GetAppointment(ctx context.Context, id string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok {
		return Appointment{}, persistence.ErrNotFound
	}
	return a, nil
}

func (r *appointmentRepoStub) FindAppointmentByIdempotencyKey(ctx context.Context, key string) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.records {
		if a.IdempotencyKey != nil && *a.IdempotencyKey == key {
			return a, nil
		}
	}
	return Appointment{}, persistence.ErrNotFound
}

func (r *appointmentRepoStub) ListAppointments(ctx context.Context) (AppointmentPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return AppointmentPage{}, r.listErr
	}
	items := make([]Appointment, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		items = append(items, r.records[r.order[i]])
	}
	total := r.total
	if total == 0 {
		total = len(items)
	}
	return AppointmentPage{Items: items, Total: total}, nil
}

func (r *appointmentRepoStub) UpdateAppointment(ctx context.Context, a Appointment, expectedRevision int) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return Appointment{}, r.updateErr
	}
	current, ok := r.records[a.ID]
	if !ok {
		return Appointment{}, persistence.ErrNotFound
	}
	if current.Revision != expectedRevision {
		return Appointment{}, persistence.ErrStale
	}
	r.records[a.ID] = a
	return a, nil
}

type notifierStub struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *notifierStub) Dispatch(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.err
}

type idempotencyStub struct {
	claims     map[string]string
	claimErr   error
	releasedID []string
}

func (s *idempotencyStub) Claim(ctx context.Context, key, id string) (string, bool, error) {
	if s.claimErr != nil {
		return "", false, s.claimErr
	}
	if s.claims == nil {
		s.claims = make(map[string]string)
	}
	if existing, ok := s.claims[key]; ok {
		return existing, false, nil
	}
	s.claims[key] = id
	return id, true, nil
}

func (s *idempotencyStub) Release(ctx context.Context, key string) error {
	delete(s.claims, key)
	s.releasedID = append(s.releasedID, key)
	return nil
}

type metricsStub struct {
	mu          sync.Mutex
	created     []string
	transitions []string
	attempts    []string
}

func (m *metricsStub) AppointmentCreated(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, outcome)
}

func (m *metricsStub) AppointmentTransitioned(mode UpdateMode, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, string(mode)+":"+outcome)
}

func (m *metricsStub) NotificationAttempted(path, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, path+":"+outcome)
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

var testNow = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func validCreateInput() CreateAppointmentInput {
	return CreateAppointmentInput{
		UserID:           "U1",
		PatientID:        "P1",
		PrimaryPhysician: "Dr. A",
		Reason:           "fever",
		Schedule:         time.Date(2024, time.March, 10, 14, 30, 0, 0, time.UTC),
	}
}

func seededAppointment(id string, status Status) Appointment {
	return Appointment{
		ID:               id,
		UserID:           "U1",
		PatientID:        "P1",
		PrimaryPhysician: "Dr. A",
		Schedule:         time.Date(2024, time.March, 10, 14, 30, 0, 0, time.UTC),
		Status:           status,
		Reason:           "fever",
		Revision:         1,
		CreatedAt:        testNow,
		UpdatedAt:        testNow,
	}
}

func TestAppointmentService_Create(t *testing.T) {
	t.Parallel()

	t.Run("persists a pending appointment with a unique id and sends nothing", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub()
		notifier := &notifierStub{}
		svc := NewAppointmentService(repo, notifier, sequentialIDs("appt"), fixedNow)

		seen := make(map[string]struct{})
		for i := 0; i < 3; i++ {
			created, err := svc.Create(context.Background(), validCreateInput())
			if err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			if created.Status != StatusPending {
				t.Fatalf("expected pending status, got %s", created.Status)
			}
			if created.Revision != 1 {
				t.Fatalf("expected revision 1, got %d", created.Revision)
			}
			if !created.CreatedAt.Equal(testNow) {
				t.Fatalf("expected createdAt from clock, got %s", created.CreatedAt)
			}
			if _, dup := seen[created.ID]; dup || created.ID == "" {
				t.Fatalf("expected unique non-empty id, got %q", created.ID)
			}
			seen[created.ID] = struct{}{}
		}

		if len(notifier.sent) != 0 {
			t.Fatalf("expected no notifications on create, got %d", len(notifier.sent))
		}
	})

	t.Run("rejects invalid input before touching the repository", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub()
		svc := NewAppointmentService(repo, nil, sequentialIDs("appt"), fixedNow)

		longNote := strings.Repeat("n", 501)
		_, err := svc.Create(context.Background(), CreateAppointmentInput{
			UserID:           "",
			PatientID:        "P1",
			PrimaryPhysician: "A",
			Reason:           "x",
			Note:             &longNote,
		})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		for _, field := range []string{"userId", "primaryPhysician", "schedule", "reason", "note"} {
			if _, ok := vErr.FieldErrors[field]; !ok {
				t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
			}
		}
		if len(repo.records) != 0 {
			t.Fatalf("expected repository to remain empty")
		}
	})

	t.Run("maps repository failures to ErrPersistence", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub()
		repo.createErr = errors.New("database is locked")
		notifier := &notifierStub{}
		svc := NewAppointmentService(repo, notifier, sequentialIDs("appt"), fixedNow)

		_, err := svc.Create(context.Background(), validCreateInput())
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if len(notifier.sent) != 0 {
			t.Fatalf("expected no notifications after failed create")
		}
	})

	t.Run("returns the original appointment for a repeated idempotency key", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub()
		metrics := &metricsStub{}
		svc := NewAppointmentService(repo, nil, sequentialIDs("appt"), fixedNow,
			WithIdempotencyStore(&idempotencyStub{}), WithMetrics(metrics))

		input := validCreateInput()
		input.IdempotencyKey = "submit-1"

		first, err := svc.Create(context.Background(), input)
		if err != nil {
			t.Fatalf("first Create returned error: %v", err)
		}
		second, err := svc.Create(context.Background(), input)
		if err != nil {
			t.Fatalf("second Create returned error: %v", err)
		}

		if first.ID != second.ID {
			t.Fatalf("expected same appointment, got %q and %q", first.ID, second.ID)
		}
		if len(repo.records) != 1 {
			t.Fatalf("expected a single stored appointment, got %d", len(repo.records))
		}
		if got := strings.Join(metrics.created, ","); got != "created,replayed" {
			t.Fatalf("unexpected create metrics %q", got)
		}
	})

	t.Run("falls back to the stored key when the claim store is unavailable", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub()
		svc := NewAppointmentService(repo, nil, sequentialIDs("appt"), fixedNow,
			WithIdempotencyStore(&idempotencyStub{claimErr: errors.New("redis down")}))

		input := validCreateInput()
		input.IdempotencyKey = "submit-2"

		first, err := svc.Create(context.Background(), input)
		if err != nil {
			t.Fatalf("first Create returned error: %v", err)
		}
		second, err := svc.Create(context.Background(), input)
		if err != nil {
			t.Fatalf("second Create returned error: %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("expected repository key to deduplicate, got %q and %q", first.ID, second.ID)
		}
	})

	t.Run("reports a conflict while the first request is in flight", func(t *testing.T) {
		t.Parallel()

		store := &idempotencyStub{claims: map[string]string{"submit-3": "appt-pending"}}
		svc := NewAppointmentService(newAppointmentRepoStub(), nil, sequentialIDs("appt"), fixedNow, WithIdempotencyStore(store))

		input := validCreateInput()
		input.IdempotencyKey = "submit-3"
		_, err := svc.Create(context.Background(), input)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("releases the claim when persistence fails", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub()
		repo.createErr = errors.New("disk full")
		store := &idempotencyStub{}
		svc := NewAppointmentService(repo, nil, sequentialIDs("appt"), fixedNow, WithIdempotencyStore(store))

		input := validCreateInput()
		input.IdempotencyKey = "submit-4"
		if _, err := svc.Create(context.Background(), input); !errors.Is(err, ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if _, held := store.claims["submit-4"]; held {
			t.Fatalf("expected claim to be released")
		}
	})
}

func TestAppointmentService_Get(t *testing.T) {
	t.Parallel()

	repo := newAppointmentRepoStub(seededAppointment("a-1", StatusPending))
	svc := NewAppointmentService(repo, nil, nil, fixedNow)

	first, err := svc.Get(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	second, err := svc.Get(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if first.ID != second.ID || first.Revision != second.Revision || first.Status != second.Status || !first.UpdatedAt.Equal(second.UpdatedAt) {
		t.Fatalf("expected identical records, got %+v and %+v", first, second)
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppointmentService_Update(t *testing.T) {
	t.Parallel()

	t.Run("scheduling sends one notification with physician and formatted time", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(seededAppointment("a-1", StatusPending))
		notifier := &notifierStub{}
		svc := NewAppointmentService(repo, notifier, sequentialIDs("n"), fixedNow)

		when := time.Date(2024, time.March, 12, 15, 45, 0, 0, time.UTC)
		updated, err := svc.Update(context.Background(), UpdateAppointmentParams{
			AppointmentID: "a-1",
			Mode:          ModeSchedule,
			Patch:         AppointmentPatch{PrimaryPhysician: "Dr. B", Schedule: when},
		})
		if err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
		if updated.Status != StatusScheduled || updated.Revision != 2 {
			t.Fatalf("expected scheduled revision 2, got %s revision %d", updated.Status, updated.Revision)
		}
		if updated.CancellationReason != nil {
			t.Fatalf("expected no cancellation reason")
		}
		if len(notifier.sent) != 1 {
			t.Fatalf("expected exactly one notification, got %d", len(notifier.sent))
		}
		sent := notifier.sent[0]
		want := "Hi, it's CarePulse. Your Appointment has been scheduled for Mar 12, 2024, 3:45 PM with Dr. Dr. B"
		if sent.Body != want {
			t.Fatalf("unexpected body:\n got %q\nwant %q", sent.Body, want)
		}
		if sent.RecipientUserID != "U1" || sent.AppointmentID != "a-1" || sent.ID == "" {
			t.Fatalf("unexpected notification envelope %+v", sent)
		}
	})

	t.Run("cancelling records the reason and notifies with it", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(seededAppointment("a-1", StatusScheduled))
		notifier := &notifierStub{}
		svc := NewAppointmentService(repo, notifier, sequentialIDs("n"), fixedNow,
			WithMessages(Messages{ProductName: "Clinic"}))

		updated, err := svc.Update(context.Background(), UpdateAppointmentParams{
			AppointmentID: "a-1",
			Mode:          ModeCancel,
			Patch:         AppointmentPatch{CancellationReason: "  patient request  "},
		})
		if err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
		if updated.Status != StatusCancelled || updated.CancellationReason == nil || *updated.CancellationReason != "patient request" {
			t.Fatalf("unexpected cancelled record %+v", updated)
		}
		if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0].Body, "patient request") {
			t.Fatalf("expected one notification mentioning the reason, got %+v", notifier.sent)
		}
		if !strings.HasPrefix(notifier.sent[0].Body, "Hi, it's Clinic.") {
			t.Fatalf("expected configured product name, got %q", notifier.sent[0].Body)
		}
	})

	t.Run("validation failures have no side effects", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(seededAppointment("a-1", StatusPending))
		notifier := &notifierStub{}
		svc := NewAppointmentService(repo, notifier, nil, fixedNow)

		_, err := svc.Update(context.Background(), UpdateAppointmentParams{AppointmentID: "a-1", Mode: ModeCancel})
		var vErr *ValidationError
		if !errors.As(err, &vErr) || vErr.FieldErrors["cancellationReason"] == "" {
			t.Fatalf("expected cancellationReason validation error, got %v", err)
		}
		_, err = svc.Update(context.Background(), UpdateAppointmentParams{AppointmentID: "a-1", Mode: ModeSchedule})
		if !errors.As(err, &vErr) || vErr.FieldErrors["primaryPhysician"] == "" || vErr.FieldErrors["schedule"] == "" {
			t.Fatalf("expected schedule validation errors, got %v", err)
		}
		if repo.records["a-1"].Revision != 1 || len(notifier.sent) != 0 {
			t.Fatalf("expected no side effects")
		}
	})

	t.Run("unknown appointment yields ErrNotFound and no notification", func(t *testing.T) {
		t.Parallel()

		notifier := &notifierStub{}
		svc := NewAppointmentService(newAppointmentRepoStub(), notifier, nil, fixedNow)

		_, err := svc.Update(context.Background(), UpdateAppointmentParams{
			AppointmentID: "missing",
			Mode:          ModeCancel,
			Patch:         AppointmentPatch{CancellationReason: "no longer needed"},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if len(notifier.sent) != 0 {
			t.Fatalf("expected no notification")
		}
	})

	t.Run("cancelled appointments are terminal", func(t *testing.T) {
		t.Parallel()

		cancelled := seededAppointment("a-1", StatusCancelled)
		reason := "patient request"
		cancelled.CancellationReason = &reason
		notifier := &notifierStub{}
		svc := NewAppointmentService(newAppointmentRepoStub(cancelled), notifier, nil, fixedNow)

		for _, mode := range []UpdateMode{ModeSchedule, ModeCancel} {
			_, err := svc.Update(context.Background(), UpdateAppointmentParams{
				AppointmentID: "a-1",
				Mode:          mode,
				Patch:         AppointmentPatch{PrimaryPhysician: "Dr. A", Schedule: testNow, CancellationReason: "again"},
			})
			if !errors.Is(err, ErrInvalidTransition) || !errors.Is(err, ErrConflict) {
				t.Fatalf("mode %s: expected ErrInvalidTransition, got %v", mode, err)
			}
		}
		if len(notifier.sent) != 0 {
			t.Fatalf("expected no notification")
		}
	})

	t.Run("stale revision is rejected without notification", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(seededAppointment("a-1", StatusPending))
		notifier := &notifierStub{}
		svc := NewAppointmentService(repo, notifier, nil, fixedNow)

		_, err := svc.Update(context.Background(), UpdateAppointmentParams{
			AppointmentID: "a-1",
			Mode:          ModeSchedule,
			Patch:         AppointmentPatch{PrimaryPhysician: "Dr. A", Schedule: testNow, ExpectedRevision: 7},
		})
		if !errors.Is(err, ErrStaleRevision) {
			t.Fatalf("expected ErrStaleRevision, got %v", err)
		}
		if len(notifier.sent) != 0 {
			t.Fatalf("expected no notification")
		}
	})

	t.Run("lost write race surfaces as stale revision", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(seededAppointment("a-1", StatusPending))
		repo.updateErr = persistence.ErrStale
		notifier := &notifierStub{}
		svc := NewAppointmentService(repo, notifier, nil, fixedNow)

		_, err := svc.Update(context.Background(), UpdateAppointmentParams{
			AppointmentID: "a-1",
			Mode:          ModeCancel,
			Patch:         AppointmentPatch{CancellationReason: "conflicting edit"},
		})
		if !errors.Is(err, ErrStaleRevision) {
			t.Fatalf("expected ErrStaleRevision, got %v", err)
		}
		if len(notifier.sent) != 0 {
			t.Fatalf("expected no notification")
		}
	})

	t.Run("persistence failure skips the notification", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(seededAppointment("a-1", StatusPending))
		repo.updateErr = errors.New("disk I/O error")
		notifier := &notifierStub{}
		svc := NewAppointmentService(repo, notifier, nil, fixedNow)

		_, err := svc.Update(context.Background(), UpdateAppointmentParams{
			AppointmentID: "a-1",
			Mode:          ModeCancel,
			Patch:         AppointmentPatch{CancellationReason: "patient request"},
		})
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if len(notifier.sent) != 0 {
			t.Fatalf("expected no notification")
		}
	})

	t.Run("notification failure does not fail the transition", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(seededAppointment("a-1", StatusPending))
		notifier := &notifierStub{err: fmt.Errorf("%w: gateway down", ErrNotification)}
		svc := NewAppointmentService(repo, notifier, sequentialIDs("n"), fixedNow)

		updated, err := svc.Update(context.Background(), UpdateAppointmentParams{
			AppointmentID: "a-1",
			Mode:          ModeSchedule,
			Patch:         AppointmentPatch{PrimaryPhysician: "Dr. A", Schedule: testNow},
		})
		if err != nil {
			t.Fatalf("expected success despite notification failure, got %v", err)
		}
		if repo.records["a-1"].Status != StatusScheduled || updated.Status != StatusScheduled {
			t.Fatalf("expected persisted scheduled status")
		}
		if len(notifier.sent) != 1 {
			t.Fatalf("expected exactly one dispatch attempt, got %d", len(notifier.sent))
		}
	})

	t.Run("caller hanging up after the write still notifies", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		repo := &cancelAfterUpdateRepo{appointmentRepoStub: newAppointmentRepoStub(seededAppointment("a-1", StatusPending)), cancel: cancel}
		gateway := &contextGateway{}
		outbox := &contextOutbox{outboxStub: newOutboxStub()}
		dispatcher := NewDispatcher(gateway, outbox, DefaultRetryPolicy, nil, sequentialIDs("n"), fixedNow, nil)
		svc := NewAppointmentService(repo, dispatcher, sequentialIDs("id"), fixedNow)

		_, err := svc.Update(ctx, UpdateAppointmentParams{
			AppointmentID: "a-1",
			Mode:          ModeCancel,
			Patch:         AppointmentPatch{CancellationReason: "Feeling better"},
		})
		if err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
		if ctx.Err() == nil {
			t.Fatalf("expected the caller context to be cancelled by the repository")
		}
		if repo.records["a-1"].Status != StatusCancelled {
			t.Fatalf("expected cancellation to be persisted")
		}
		if len(gateway.sent) != 1 || len(outbox.rows) != 0 {
			t.Fatalf("expected one inline delivery, got sent=%v queued=%d", gateway.sent, len(outbox.rows))
		}
	})
}

type cancelAfterUpdateRepo struct {
	*appointmentRepoStub
	cancel context.CancelFunc
}

func (r *cancelAfterUpdateRepo) UpdateAppointment(ctx context.Context, a Appointment, expectedRevision int) (Appointment, error) {
	updated, err := r.appointmentRepoStub.UpdateAppointment(ctx, a, expectedRevision)
	r.cancel()
	return updated, err
}

func TestAppointmentService_Scenario(t *testing.T) {
	t.Parallel()

	repo := newAppointmentRepoStub()
	notifier := &notifierStub{}
	svc := NewAppointmentService(repo, notifier, sequentialIDs("id"), fixedNow)
	ctx := context.Background()
	t1 := time.Date(2024, time.April, 1, 10, 0, 0, 0, time.UTC)

	created, err := svc.Create(ctx, CreateAppointmentInput{UserID: "U1", PatientID: "P1", PrimaryPhysician: "Dr. A", Reason: "fever", Schedule: t1})
	if err != nil || created.Status != StatusPending {
		t.Fatalf("create: %+v %v", created, err)
	}

	scheduled, err := svc.Update(ctx, UpdateAppointmentParams{AppointmentID: created.ID, Mode: ModeSchedule, Patch: AppointmentPatch{PrimaryPhysician: "Dr. A", Schedule: t1}})
	if err != nil || scheduled.Status != StatusScheduled {
		t.Fatalf("schedule: %+v %v", scheduled, err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].RecipientUserID != "U1" || !strings.Contains(notifier.sent[0].Body, "Dr. A") {
		t.Fatalf("unexpected schedule notification %+v", notifier.sent)
	}

	cancelled, err := svc.Update(ctx, UpdateAppointmentParams{AppointmentID: created.ID, Mode: ModeCancel, Patch: AppointmentPatch{CancellationReason: "patient request", ExpectedRevision: scheduled.Revision}})
	if err != nil || cancelled.Status != StatusCancelled {
		t.Fatalf("cancel: %+v %v", cancelled, err)
	}
	if len(notifier.sent) != 2 || !strings.Contains(notifier.sent[1].Body, "patient request") {
		t.Fatalf("unexpected cancel notification %+v", notifier.sent)
	}
	if cancelled.Revision != 3 {
		t.Fatalf("expected revision 3, got %d", cancelled.Revision)
	}
}

func TestAppointmentService_ListRecentWithSummary(t *testing.T) {
	t.Parallel()

	t.Run("counts each status once and keeps newest first", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(
			seededAppointment("a-1", StatusPending),
			seededAppointment("a-2", StatusScheduled),
			seededAppointment("a-3", StatusCancelled),
		)
		svc := NewAppointmentService(repo, nil, nil, fixedNow)

		summary, err := svc.ListRecentWithSummary(context.Background())
		if err != nil {
			t.Fatalf("ListRecentWithSummary returned error: %v", err)
		}
		if summary.PendingCount != 1 || summary.ScheduledCount != 1 || summary.CancelledCount != 1 || summary.UnknownCount != 0 {
			t.Fatalf("unexpected counts %+v", summary)
		}
		if summary.TotalCount != 3 || len(summary.Documents) != 3 {
			t.Fatalf("expected three documents, got %d (total %d)", len(summary.Documents), summary.TotalCount)
		}
		if summary.Documents[0].ID != "a-3" || summary.Documents[2].ID != "a-1" {
			t.Fatalf("expected newest first, got %s..%s", summary.Documents[0].ID, summary.Documents[2].ID)
		}
	})

	t.Run("unrecognised statuses are not folded into cancelled", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(
			seededAppointment("a-1", StatusCancelled),
			seededAppointment("a-2", ParseStatus("archived")),
		)
		repo.total = 10
		svc := NewAppointmentService(repo, nil, nil, fixedNow)

		summary, err := svc.ListRecentWithSummary(context.Background())
		if err != nil {
			t.Fatalf("ListRecentWithSummary returned error: %v", err)
		}
		if summary.CancelledCount != 1 || summary.UnknownCount != 1 {
			t.Fatalf("unexpected counts %+v", summary)
		}
		if summary.TotalCount != 10 {
			t.Fatalf("expected repository total to be reported, got %d", summary.TotalCount)
		}
		sum := summary.ScheduledCount + summary.PendingCount + summary.CancelledCount + summary.UnknownCount
		if sum != len(summary.Documents) {
			t.Fatalf("counts sum to %d, documents %d", sum, len(summary.Documents))
		}
	})

	t.Run("listing failure returns no partial result", func(t *testing.T) {
		t.Parallel()

		repo := newAppointmentRepoStub(seededAppointment("a-1", StatusPending))
		repo.listErr = errors.New("timeout")
		svc := NewAppointmentService(repo, nil, nil, fixedNow)

		summary, err := svc.ListRecentWithSummary(context.Background())
		if !errors.Is(err, ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if summary.Documents != nil || summary.TotalCount != 0 {
			t.Fatalf("expected zero summary, got %+v", summary)
		}
	})
}

func TestSummarizeCountsAlwaysMatchDocuments(t *testing.T) {
	t.Parallel()

	statuses := []Status{StatusPending, StatusScheduled, StatusCancelled, StatusUnknown}
	for n := 0; n < 40; n++ {
		items := make([]Appointment, n)
		for i := range items {
			items[i] = Appointment{ID: fmt.Sprintf("a-%d", i), Status: statuses[(i*7+n)%len(statuses)]}
		}
		summary := Summarize(AppointmentPage{Items: items, Total: n + 5})
		sum := summary.ScheduledCount + summary.PendingCount + summary.CancelledCount + summary.UnknownCount
		if sum != len(summary.Documents) || len(summary.Documents) != n {
			t.Fatalf("n=%d: counts sum %d, documents %d", n, sum, len(summary.Documents))
		}
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]Status{
		"pending":   StatusPending,
		"scheduled": StatusScheduled,
		"cancelled": StatusCancelled,
		"canceled":  StatusUnknown,
		"":          StatusUnknown,
	}
	for raw, want := range cases {
		if got := ParseStatus(raw); got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", raw, got, want)
		}
	}
	if StatusUnknown.String() != "unknown" {
		t.Fatalf("expected unknown label")
	}
}
