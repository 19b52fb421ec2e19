package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bountyboard/internal/domain"
)

// DefaultCustomer is the tenant scenarios run under when none is named.
const DefaultCustomer = "guild-1"

// Scenario is one lifecycle test.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Customer    string      `yaml:"customer,omitempty"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions"`
}

// Step is one activity request.
type Step struct {
	Activity string `yaml:"activity"`

	// Bounty is a label bound by an earlier step, or a raw id.
	Bounty string `yaml:"bounty,omitempty"`

	// As binds the id of the bounty the step produced to a label. For a
	// claim against an evergreen parent that is the new child.
	As string `yaml:"as,omitempty"`

	Actor   string         `yaml:"actor"`
	Origin  string         `yaml:"origin,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion checks the final state of one bounty. Unset fields are not
// checked.
type Assertion struct {
	Bounty     string `yaml:"bounty"`
	Status     string `yaml:"status,omitempty"`
	Paid       *bool  `yaml:"paid,omitempty"`
	HistoryLen *int   `yaml:"history_len,omitempty"`
	Children   *int   `yaml:"children,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if s.Customer == "" {
		s.Customer = DefaultCustomer
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	labels := map[string]bool{}
	for i, step := range s.Steps {
		if _, err := domain.ParseActivity(step.Activity); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Actor == "" {
			return fmt.Errorf("steps[%d]: actor is required", i)
		}
		if step.Activity != string(domain.ActivityCreate) && step.Bounty == "" {
			return fmt.Errorf("steps[%d]: bounty is required for %s", i, step.Activity)
		}
		if step.Origin != "" {
			if _, err := domain.ParseOrigin(step.Origin); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
		if step.ExpectError != "" && !knownCode(step.ExpectError) {
			return fmt.Errorf("steps[%d]: unknown error code %q", i, step.ExpectError)
		}
		if step.As != "" {
			if labels[step.As] {
				return fmt.Errorf("steps[%d]: label %q bound twice", i, step.As)
			}
			labels[step.As] = true
		}
	}

	for i, a := range s.Assertions {
		if a.Bounty == "" {
			return fmt.Errorf("assertions[%d]: bounty is required", i)
		}
		if a.Status != "" && !domain.Status(a.Status).Valid() {
			return fmt.Errorf("assertions[%d]: unknown status %q", i, a.Status)
		}
	}
	return nil
}

func knownCode(code string) bool {
	switch domain.ErrorCode(code) {
	case domain.ErrCodeValidation,
		domain.ErrCodePrecondition,
		domain.ErrCodeConcurrentModification,
		domain.ErrCodeNotFound,
		domain.ErrCodeDependencyUnavailable,
		domain.ErrCodeUnrecognizedActivity:
		return true
	default:
		return false
	}
}
