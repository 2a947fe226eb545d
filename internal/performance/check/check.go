// Package check provides response expectations and value extraction shared
// by setup operations and workflow steps.
package check

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/slorun/slorun/internal/performance/transport"
)

// Expectation inspects a response and returns an error describing the first
// mismatch, or nil if the response is acceptable.
type Expectation func(resp *transport.Response) error

// MismatchError reports a response that did not meet an expectation.
type MismatchError struct {
	Check    string
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Check, e.Expected, e.Actual)
}

// Status expects one of the given status codes.
func Status(codes ...int) Expectation {
	return func(resp *transport.Response) error {
		for _, code := range codes {
			if resp.StatusCode == code {
				return nil
			}
		}
		return &MismatchError{
			Check:    "status",
			Expected: joinCodes(codes),
			Actual:   strconv.Itoa(resp.StatusCode),
		}
	}
}

// NonEmptyBody expects a body with at least one non-whitespace byte.
func NonEmptyBody() Expectation {
	return func(resp *transport.Response) error {
		if len(bytes.TrimSpace(resp.Body)) == 0 {
			return &MismatchError{Check: "body", Expected: "non-empty body", Actual: "empty body"}
		}
		return nil
	}
}

// MatchesSchema expects a JSON body valid against schema.
func MatchesSchema(schema *Schema) Expectation {
	return func(resp *transport.Response) error {
		if err := schema.Validate(resp.Body); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
		return nil
	}
}

// HasPath expects a JSON body where path resolves to a non-null value.
func HasPath(path string) Expectation {
	return func(resp *transport.Response) error {
		if _, err := ExtractString(resp.Body, path); err != nil {
			return &MismatchError{Check: "jsonpath", Expected: path + " present", Actual: err.Error()}
		}
		return nil
	}
}

// All combines expectations; the first failure wins.
func All(expectations ...Expectation) Expectation {
	return func(resp *transport.Response) error {
		for _, expect := range expectations {
			if expect == nil {
				continue
			}
			if err := expect(resp); err != nil {
				return err
			}
		}
		return nil
	}
}

func joinCodes(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, " or ")
}
