package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const (
	appointmentIDParam = "appointmentID"
	userIDParam        = "userID"
)

// pathParam returns the trimmed chi URL parameter.
func pathParam(r *http.Request, name string) string {
	return strings.TrimSpace(chi.URLParam(r, name))
}
