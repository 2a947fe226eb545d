// Package pvz defines the load test of the PVZ (pickup point) service: the
// setup that obtains tokens and seeds pickup points, and the three workflows
// run by the auth, pvz and reception scenarios.
package pvz

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/slorun/slorun/internal/performance/transport"
)

// API paths.
const (
	PathDummyLogin = "/dummyLogin"
	PathRegister   = "/register"
	PathLogin      = "/login"
	PathPVZ        = "/pvz"
	PathReceptions = "/receptions"
	PathProducts   = "/products"
)

// Roles accepted by /dummyLogin and /register.
const (
	RoleEmployee  = "employee"
	RoleModerator = "moderator"
)

// Fixed request data.
const (
	City             = "Москва"
	ProductType      = "одежда"
	RegistrationDate = "2025-09-22T18:04:04.605Z"

	listStartDate = "2008-01-01T00:00:00Z"
	listEndDate   = "2035-01-01T00:00:00Z"
	listPage      = 1
	listLimit     = 10
)

// PVZ is the body of POST /pvz and its response.
type PVZ struct {
	ID               string `json:"id"`
	City             string `json:"city"`
	RegistrationDate string `json:"registrationDate"`
}

// NewPVZ returns a pickup point with a fresh random id.
func NewPVZ() PVZ {
	return PVZ{
		ID:               uuid.NewString(),
		City:             City,
		RegistrationDate: RegistrationDate,
	}
}

// Credentials are the body of /register and /login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// NewCredentials returns a random employee account.
func NewCredentials() Credentials {
	return Credentials{
		Email:    fmt.Sprintf("load_test_%s@test.com", randomString(8)),
		Password: randomString(6),
		Role:     RoleEmployee,
	}
}

// randomString returns n random lowercase hex characters (n <= 32).
func randomString(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// jsonRequest builds a POST with a JSON body.
func jsonRequest(path string, body any) (*transport.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", path, err)
	}
	return transport.NewRequest(http.MethodPost, path, data).
		WithHeader("Content-Type", "application/json"), nil
}

// listPath is the GET /pvz query used by the pvz scenario.
func listPath() string {
	q := url.Values{}
	q.Set("startDate", listStartDate)
	q.Set("endDate", listEndDate)
	q.Set("page", fmt.Sprint(listPage))
	q.Set("limit", fmt.Sprint(listLimit))
	return PathPVZ + "?" + q.Encode()
}

func deleteLastProductPath(pvzID string) string {
	return PathPVZ + "/" + url.PathEscape(pvzID) + "/delete_last_product"
}

func closeLastReceptionPath(pvzID string) string {
	return PathPVZ + "/" + url.PathEscape(pvzID) + "/close_last_reception"
}
