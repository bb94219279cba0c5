package flow

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed script.yaml
var defaultScript []byte

// StepID names a questionnaire step.
type StepID string

const (
	StepGreeting          StepID = "greeting"
	StepUnitNumber        StepID = "unit_number"
	StepIssueDescription  StepID = "issue_description"
	StepPermissionToEnter StepID = "permission_to_enter"
	StepPetsPresent       StepID = "pets_present"
	StepComplete          StepID = "complete"
)

// InputKind is the kind of answer a step expects.
type InputKind string

const (
	InputText       InputKind = "text"
	InputAccumulate InputKind = "accumulate"
	InputYesNo      InputKind = "yes_no"
)

// Step describes one questionnaire step.
type Step struct {
	ID              StepID    `yaml:"id"`
	Field           string    `yaml:"field"`
	Input           InputKind `yaml:"input"`
	Prompt          string    `yaml:"prompt"`
	MaxRetries      int       `yaml:"max_retries"`
	DetectEmergency bool      `yaml:"detect_emergency"`
}

// Emergency configures emergency detection on accumulated steps.
type Emergency struct {
	Field           string   `yaml:"field"`
	Keywords        []string `yaml:"keywords"`
	Acknowledgement string   `yaml:"acknowledgement"`
}

// Script is the declarative questionnaire. It is the single source of truth
// for step order, prompts, retry budgets and the emergency keyword list.
type Script struct {
	Steps        []Step    `yaml:"steps"`
	Emergency    Emergency `yaml:"emergency"`
	Confirmation string    `yaml:"confirmation"`
	Goodbye      string    `yaml:"goodbye"`
}

// ErrInvalidScript is returned by ParseScript for a structurally invalid script.
var ErrInvalidScript = errors.New("invalid flow script")

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse flow script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every step is usable.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScript)
	}
	seen := make(map[StepID]bool)
	for i, st := range s.Steps {
		if st.ID == "" || st.Field == "" || st.Prompt == "" {
			return fmt.Errorf("%w: step %d needs id, field and prompt", ErrInvalidScript, i)
		}
		if st.ID == StepGreeting || st.ID == StepComplete {
			return fmt.Errorf("%w: step id %q is reserved", ErrInvalidScript, st.ID)
		}
		if seen[st.ID] {
			return fmt.Errorf("%w: duplicate step %q", ErrInvalidScript, st.ID)
		}
		seen[st.ID] = true
		switch st.Input {
		case InputText, InputAccumulate, InputYesNo:
		default:
			return fmt.Errorf("%w: step %q has unknown input %q", ErrInvalidScript, st.ID, st.Input)
		}
		if st.MaxRetries < 0 {
			return fmt.Errorf("%w: step %q has negative max_retries", ErrInvalidScript, st.ID)
		}
		if st.DetectEmergency && s.Emergency.Field == "" {
			return fmt.Errorf("%w: step %q detects emergencies but no emergency field is set", ErrInvalidScript, st.ID)
		}
	}
	return nil
}

// Index returns the position of id in the step list, or -1.
func (s *Script) Index(id StepID) int {
	for i, st := range s.Steps {
		if st.ID == id {
			return i
		}
	}
	return -1
}

var loadDefault = sync.OnceValues(func() (*Script, error) {
	return ParseScript(defaultScript)
})

// DefaultScript returns the embedded maintenance questionnaire.
func DefaultScript() *Script {
	s, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return s
}
