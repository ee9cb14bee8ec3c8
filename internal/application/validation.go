package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterAlias("intlphone", "startswith=+,min=11,max=16,e164")
	return v
}

var consentMessages = map[string]string{
	"treatmentConsent":  "you must consent to treatment in order to proceed",
	"disclosureConsent": "you must consent to disclosure in order to proceed",
	"privacyConsent":    "you must consent to privacy in order to proceed",
}

type appointmentRules struct {
	UserID           string    `json:"userId" validate:"required"`
	PatientID        string    `json:"patientId" validate:"required"`
	PrimaryPhysician string    `json:"primaryPhysician" validate:"required,min=2"`
	Schedule         time.Time `json:"schedule" validate:"required"`
	Reason           string    `json:"reason" validate:"required,min=2,max=500"`
	Note             string    `json:"note" validate:"max=500"`
}

type scheduleRules struct {
	PrimaryPhysician string    `json:"primaryPhysician" validate:"required"`
	Schedule         time.Time `json:"schedule" validate:"required"`
	Revision         int       `json:"revision" validate:"gte=0"`
}

type cancelRules struct {
	CancellationReason string `json:"cancellationReason" validate:"required,min=2,max=500"`
	Revision           int    `json:"revision" validate:"gte=0"`
}

type contactRules struct {
	Name  string `json:"name" validate:"required,min=2,max=50"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,intlphone"`
}

type registrationRules struct {
	UserID                 string    `json:"userId" validate:"required"`
	BirthDate              time.Time `json:"birthDate" validate:"required"`
	Gender                 string    `json:"gender" validate:"required,oneof=male female other"`
	Address                string    `json:"address" validate:"required,min=5,max=500"`
	Occupation             string    `json:"occupation" validate:"required,min=2,max=500"`
	EmergencyContactName   string    `json:"emergencyContactName" validate:"required,min=2,max=50"`
	EmergencyContactNumber string    `json:"emergencyContactNumber" validate:"required,intlphone"`
	PrimaryPhysician       string    `json:"primaryPhysician" validate:"required,min=2"`
	InsuranceProvider      string    `json:"insuranceProvider" validate:"required"`
	InsurancePolicyNumber  string    `json:"insurancePolicyNumber" validate:"required"`
	TreatmentConsent       bool      `json:"treatmentConsent" validate:"required"`
	DisclosureConsent      bool      `json:"disclosureConsent" validate:"required"`
	PrivacyConsent         bool      `json:"privacyConsent" validate:"required"`
}

func validateCreateAppointment(input CreateAppointmentInput) *ValidationError {
	rules := appointmentRules{
		UserID:           strings.TrimSpace(input.UserID),
		PatientID:        strings.TrimSpace(input.PatientID),
		PrimaryPhysician: strings.TrimSpace(input.PrimaryPhysician),
		Schedule:         input.Schedule,
		Reason:           strings.TrimSpace(input.Reason),
	}
	if note := trimmedOptional(input.Note); note != nil {
		rules.Note = *note
	}
	return checkRules(rules)
}

func validatePatch(mode UpdateMode, patch AppointmentPatch) *ValidationError {
	vErr := &ValidationError{}

	switch mode {
	case ModeSchedule:
		vErr.merge(checkRules(scheduleRules{
			PrimaryPhysician: strings.TrimSpace(patch.PrimaryPhysician),
			Schedule:         patch.Schedule,
			Revision:         patch.ExpectedRevision,
		}))
	case ModeCancel:
		vErr.merge(checkRules(cancelRules{
			CancellationReason: strings.TrimSpace(patch.CancellationReason),
			Revision:           patch.ExpectedRevision,
		}))
	default:
		vErr.add("mode", "mode must be schedule or cancel")
	}

	return vErr
}

func validateUser(input CreateUserInput) *ValidationError {
	return checkRules(contactRules{
		Name:  strings.TrimSpace(input.Name),
		Email: strings.TrimSpace(input.Email),
		Phone: strings.TrimSpace(input.Phone),
	})
}

func validateRegistration(input RegisterPatientInput) *ValidationError {
	vErr := validateUser(CreateUserInput{Name: input.Name, Email: input.Email, Phone: input.Phone})
	vErr.merge(checkRules(registrationRules{
		UserID:                 strings.TrimSpace(input.UserID),
		BirthDate:              input.BirthDate,
		Gender:                 strings.ToLower(strings.TrimSpace(input.Gender)),
		Address:                strings.TrimSpace(input.Address),
		Occupation:             strings.TrimSpace(input.Occupation),
		EmergencyContactName:   strings.TrimSpace(input.EmergencyContactName),
		EmergencyContactNumber: strings.TrimSpace(input.EmergencyContactNumber),
		PrimaryPhysician:       strings.TrimSpace(input.PrimaryPhysician),
		InsuranceProvider:      strings.TrimSpace(input.InsuranceProvider),
		InsurancePolicyNumber:  strings.TrimSpace(input.InsurancePolicyNumber),
		TreatmentConsent:       input.TreatmentConsent,
		DisclosureConsent:      input.DisclosureConsent,
		PrivacyConsent:         input.PrivacyConsent,
	}))
	return vErr
}

// checkRules runs the struct tags on rules and translates failures into
// field errors keyed by the json name.
func checkRules(rules any) *ValidationError {
	vErr := &ValidationError{}
	err := validate.Struct(rules)
	if err == nil {
		return vErr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("_", err.Error())
		return vErr
	}
	for _, fe := range fieldErrs {
		vErr.add(fe.Field(), fieldMessage(fe))
	}
	return vErr
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		if msg, ok := consentMessages[field]; ok {
			return msg
		}
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return field + " is invalid"
	case "intlphone":
		return field + " must be in international format"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return field + " must be positive"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func trimmedOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
