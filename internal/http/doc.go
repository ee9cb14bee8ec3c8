// Package http provides HTTP handlers and middleware for the CarePulse API.
//
// The router exposes the following endpoints:
//   - POST /users: signs up a user. Body: {"name","email","phone"}. A repeated
//     email returns the existing user.
//   - GET /users/{userID}, GET /users/{userID}/patient: identity and registration lookups.
//   - POST /patients: multipart/form-data with a JSON `patient` field (see
//     registerPatientRequest) and an optional `identificationDocument` file.
//   - POST /appointments: books a pending appointment. An `Idempotency-Key` header
//     makes retries of the same submission return the original appointment.
//   - GET /appointments/{appointmentID}: returns the appointment and its revision.
//   - POST /appointments/{appointmentID}/schedule: body {"primaryPhysician","schedule","revision"}.
//   - POST /appointments/{appointmentID}/cancel: body {"cancellationReason","revision"}.
//     The optional revision rejects the write with 409 when the record changed.
//   - GET /admin/appointments: counts per status plus every appointment newest
//     first. Requires the `X-Admin-Passkey` header.
//   - GET /metrics, GET /healthz: operational endpoints.
//
// Validation failures map to 422 with per-field messages, missing records to 404,
// conflicts and invalid transitions to 409, and a rejected passkey to 401.
package http
