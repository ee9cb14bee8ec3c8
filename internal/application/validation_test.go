package application

import (
	"strings"
	"testing"
	"time"
)

func TestValidateCreateAppointment(t *testing.T) {
	t.Parallel()

	valid := CreateAppointmentInput{
		UserID:           "U1",
		PatientID:        "P1",
		PrimaryPhysician: "Dr. Green",
		Reason:           "Persistent cough",
		Schedule:         time.Date(2024, time.March, 10, 14, 30, 0, 0, time.UTC),
	}
	if vErr := validateCreateAppointment(valid); vErr.HasErrors() {
		t.Fatalf("expected valid input, got %v", vErr.FieldErrors)
	}

	blankNote := "   "
	valid.Note = &blankNote
	if vErr := validateCreateAppointment(valid); vErr.HasErrors() {
		t.Fatalf("expected blank note to be ignored, got %v", vErr.FieldErrors)
	}

	vErr := validateCreateAppointment(CreateAppointmentInput{PrimaryPhysician: " A ", Reason: strings.Repeat("r", 501)})
	want := map[string]string{
		"userId":           "userId is required",
		"patientId":        "patientId is required",
		"primaryPhysician": "primaryPhysician must be at least 2 characters",
		"schedule":         "schedule is required",
		"reason":           "reason must be at most 500 characters",
	}
	for field, msg := range want {
		if got := vErr.FieldErrors[field]; got != msg {
			t.Fatalf("%s: expected %q, got %q", field, msg, got)
		}
	}
}

func TestValidatePatch(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		mode   UpdateMode
		patch  AppointmentPatch
		fields []string
	}{
		"schedule ok": {
			mode:  ModeSchedule,
			patch: AppointmentPatch{PrimaryPhysician: "Dr. Green", Schedule: time.Now()},
		},
		"schedule missing fields": {
			mode:   ModeSchedule,
			patch:  AppointmentPatch{CancellationReason: "ignored"},
			fields: []string{"primaryPhysician", "schedule"},
		},
		"cancel ok": {
			mode:  ModeCancel,
			patch: AppointmentPatch{CancellationReason: "Feeling better", ExpectedRevision: 3},
		},
		"cancel reason too short": {
			mode:   ModeCancel,
			patch:  AppointmentPatch{CancellationReason: " x "},
			fields: []string{"cancellationReason"},
		},
		"negative revision": {
			mode:   ModeCancel,
			patch:  AppointmentPatch{CancellationReason: "Feeling better", ExpectedRevision: -1},
			fields: []string{"revision"},
		},
		"unknown mode": {
			mode:   UpdateMode("archive"),
			fields: []string{"mode"},
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			vErr := validatePatch(tc.mode, tc.patch)
			if len(vErr.FieldErrors) != len(tc.fields) {
				t.Fatalf("expected fields %v, got %v", tc.fields, vErr.FieldErrors)
			}
			for _, field := range tc.fields {
				if vErr.FieldErrors[field] == "" {
					t.Fatalf("expected %s error, got %v", field, vErr.FieldErrors)
				}
			}
		})
	}
}

func TestValidateUserPhoneFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"+15551234567":      true,
		"+447911123456":     true,
		"15551234567":       false,
		"+155512345":        false,
		"+1234567890123456": false,
		"+1555-123-4567":    false,
	}
	for phone, ok := range cases {
		vErr := validateUser(CreateUserInput{Name: "Jane Doe", Email: "jane@example.com", Phone: phone})
		if got := vErr.FieldErrors["phone"]; (got == "") != ok {
			t.Fatalf("phone %q: expected valid=%v, got %q", phone, ok, got)
		}
		if !ok && vErr.FieldErrors["phone"] != "phone must be in international format" {
			t.Fatalf("unexpected phone message %q", vErr.FieldErrors["phone"])
		}
	}
}

func TestValidateRegistration(t *testing.T) {
	t.Parallel()

	if vErr := validateRegistration(validRegistration()); vErr.HasErrors() {
		t.Fatalf("expected valid registration, got %v", vErr.FieldErrors)
	}

	input := validRegistration()
	input.Gender = " Female "
	if vErr := validateRegistration(input); vErr.HasErrors() {
		t.Fatalf("expected gender to be normalised, got %v", vErr.FieldErrors)
	}

	input = validRegistration()
	input.Email = "not-an-email"
	input.Gender = "unspecified"
	input.BirthDate = time.Time{}
	input.DisclosureConsent = false
	vErr := validateRegistration(input)

	want := map[string]string{
		"email":             "email is invalid",
		"gender":            "gender must be one of male, female, other",
		"birthDate":         "birthDate is required",
		"disclosureConsent": "you must consent to disclosure in order to proceed",
	}
	if len(vErr.FieldErrors) != len(want) {
		t.Fatalf("expected %d field errors, got %v", len(want), vErr.FieldErrors)
	}
	for field, msg := range want {
		if got := vErr.FieldErrors[field]; got != msg {
			t.Fatalf("%s: expected %q, got %q", field, msg, got)
		}
	}
}
