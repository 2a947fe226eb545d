package pvz

import (
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/slorun/slorun/internal/performance/check"
	"github.com/slorun/slorun/internal/performance/engine"
	"github.com/slorun/slorun/internal/performance/setup"
	"github.com/slorun/slorun/internal/performance/transport"
	"github.com/slorun/slorun/internal/performance/workflow"
)

// Workflow names, as referenced by the exec field of a scenario.
const (
	ExecAuth      = "authScenario"
	ExecPVZ       = "pvzScenario"
	ExecReception = "receptionScenario"
)

// ThinkTime is the pause after every successful iteration.
const ThinkTime = time.Second

// credentialsKey holds the account generated for one auth iteration.
const credentialsKey = "credentials"

// pvzListSchema accepts a non-empty list containing at least one entry with
// a pvz id.
const pvzListSchema = `{
	"type": "array",
	"minItems": 1,
	"items": {"type": "object"},
	"contains": {
		"type": "object",
		"required": ["pvz"],
		"properties": {
			"pvz": {
				"type": "object",
				"required": ["id"],
				"properties": {"id": {"type": "string", "minLength": 1}}
			}
		}
	}
}`

var listSchema = check.MustCompileSchema(pvzListSchema)

// AuthWorkflow registers a random employee and logs in with it.
func AuthWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		Name:      ExecAuth,
		ThinkTime: ThinkTime,
		Prepare: func() workflow.Outputs {
			return workflow.Outputs{credentialsKey: NewCredentials()}
		},
		Steps: []workflow.Step{
			{
				Name: "register",
				Build: func(_ *setup.Result, prior workflow.Outputs) (*transport.Request, error) {
					creds, ok := prior[credentialsKey].(Credentials)
					if !ok {
						return nil, fmt.Errorf("no generated credentials")
					}
					return jsonRequest(PathRegister, creds)
				},
				Expect: check.Status(http.StatusCreated),
			},
			{
				Name: "login",
				Build: func(_ *setup.Result, prior workflow.Outputs) (*transport.Request, error) {
					creds, ok := prior[credentialsKey].(Credentials)
					if !ok {
						return nil, fmt.Errorf("no generated credentials")
					}
					return jsonRequest(PathLogin, Credentials{Email: creds.Email, Password: creds.Password})
				},
				Expect: check.All(check.Status(http.StatusOK), check.NonEmptyBody()),
			},
		},
	}
}

// PVZWorkflow lists pickup points as an employee and requires at least one.
func PVZWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		Name:      ExecPVZ,
		ThinkTime: ThinkTime,
		Steps: []workflow.Step{{
			Name: "list pvz",
			Build: func(shared *setup.Result, _ workflow.Outputs) (*transport.Request, error) {
				token, err := shared.MustString(KeyEmployeeToken)
				if err != nil {
					return nil, err
				}
				return transport.NewRequest(http.MethodGet, listPath(), nil).WithBearer(token), nil
			},
			Expect: check.All(
				check.Status(http.StatusOK),
				check.MatchesSchema(listSchema),
				anyPVZID,
			),
		}},
	}
}

// anyPVZID expects at least one list entry with a non-empty pvz.id.
func anyPVZID(resp *transport.Response) error {
	for _, id := range gjson.GetBytes(resp.Body, "#.pvz.id").Array() {
		if id.String() != "" {
			return nil
		}
	}
	return &check.MismatchError{Check: "pvz list", Expected: "at least one pvz.id", Actual: "none"}
}

// ReceptionWorkflow creates a pickup point, opens a reception on it, adds
// and removes a product, then closes the reception.
func ReceptionWorkflow() *workflow.Workflow {
	const createStep = "create pvz"

	employeePost := func(path func(prior workflow.Outputs) string, body func(prior workflow.Outputs) any) func(*setup.Result, workflow.Outputs) (*transport.Request, error) {
		return func(shared *setup.Result, prior workflow.Outputs) (*transport.Request, error) {
			token, err := shared.MustString(KeyEmployeeToken)
			if err != nil {
				return nil, err
			}
			if body == nil {
				return transport.NewRequest(http.MethodPost, path(prior), nil).WithBearer(token), nil
			}
			req, err := jsonRequest(path(prior), body(prior))
			if err != nil {
				return nil, err
			}
			return req.WithBearer(token), nil
		}
	}
	fixed := func(p string) func(workflow.Outputs) string {
		return func(workflow.Outputs) string { return p }
	}

	return &workflow.Workflow{
		Name:      ExecReception,
		ThinkTime: ThinkTime,
		Steps: []workflow.Step{
			{
				Name: createStep,
				Build: func(shared *setup.Result, _ workflow.Outputs) (*transport.Request, error) {
					token, err := shared.MustString(KeyModeratorToken)
					if err != nil {
						return nil, err
					}
					req, err := jsonRequest(PathPVZ, NewPVZ())
					if err != nil {
						return nil, err
					}
					return req.WithBearer(token), nil
				},
				Expect:  check.Status(http.StatusCreated),
				Extract: workflow.ExtractJSON("$.id"),
			},
			{
				Name: "create reception",
				Build: employeePost(fixed(PathReceptions), func(prior workflow.Outputs) any {
					return map[string]string{"pvzId": prior.String(createStep)}
				}),
				Expect: check.Status(http.StatusCreated),
			},
			{
				Name: "add product",
				Build: employeePost(fixed(PathProducts), func(prior workflow.Outputs) any {
					return map[string]string{"pvzId": prior.String(createStep), "type": ProductType}
				}),
				Expect: check.Status(http.StatusCreated),
			},
			{
				Name: "delete last product",
				Build: employeePost(func(prior workflow.Outputs) string {
					return deleteLastProductPath(prior.String(createStep))
				}, nil),
				Expect: check.Status(http.StatusOK),
			},
			{
				Name: "close last reception",
				Build: employeePost(func(prior workflow.Outputs) string {
					return closeLastReceptionPath(prior.String(createStep))
				}, nil),
				Expect: check.Status(http.StatusOK),
			},
		},
	}
}

// Workflows returns the workflow registry keyed by exec name.
func Workflows() map[string]*workflow.Workflow {
	return map[string]*workflow.Workflow{
		ExecAuth:      AuthWorkflow(),
		ExecPVZ:       PVZWorkflow(),
		ExecReception: ReceptionWorkflow(),
	}
}

// Suite returns the setup and workflows of the PVZ load test.
func Suite() engine.Suite {
	return engine.Suite{
		Setup:     SetupOperations(DefaultSeedCount),
		Workflows: Workflows(),
	}
}
