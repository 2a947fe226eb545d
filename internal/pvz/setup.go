package pvz

import (
	"net/http"

	"github.com/slorun/slorun/internal/performance/check"
	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/transport"
)

// Setup result keys.
const (
	KeyEmployeeToken  = "employeeToken"
	KeyModeratorToken = "moderatorToken"
	KeySeededPVZIDs   = "seededPvzIds"
)

// DefaultSeedCount is how many pickup points setup creates so the list
// endpoint never returns an empty page.
const DefaultSeedCount = 20

// SetupOperations returns the setup stage: one token per role, then seed
// pickup points created by the moderator.
func SetupOperations(seed int) []setup.Operation {
	ops := []setup.Operation{
		dummyLogin(RoleEmployee, KeyEmployeeToken),
		dummyLogin(RoleModerator, KeyModeratorToken),
	}
	return append(ops, setup.Repeat(seed, seedPVZ())...)
}

func dummyLogin(role, key string) setup.Operation {
	return setup.Operation{
		Name: "dummyLogin " + role,
		Build: func(*setup.Values) (*transport.Request, error) {
			return jsonRequest(PathDummyLogin, map[string]string{"role": role})
		},
		Expect: check.All(check.Status(http.StatusOK), check.NonEmptyBody()),
		Store: func(resp *transport.Response, v *setup.Values) error {
			v.Set(key, string(resp.Body))
			return nil
		},
	}
}

func seedPVZ() setup.Operation {
	return setup.Operation{
		Name: "seed pvz",
		Build: func(v *setup.Values) (*transport.Request, error) {
			req, err := jsonRequest(PathPVZ, NewPVZ())
			if err != nil {
				return nil, err
			}
			return req.WithBearer(v.String(KeyModeratorToken)), nil
		},
		Expect: check.Status(http.StatusCreated),
		Store: func(resp *transport.Response, v *setup.Values) error {
			id, err := check.ExtractString(resp.Body, "$.id")
			if err != nil {
				return err
			}
			v.Append(KeySeededPVZIDs, id)
			return nil
		},
	}
}
