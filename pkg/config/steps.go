package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/stepflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StepKey is the key holding options for one step of a workflow.
func StepKey(workflowID, stepName string) string {
	return "steps." + workflowID + "." + stepName
}

// StepOptions returns the configured options for a step. A step without
// configuration gets zero options, which the engine fills with defaults.
// Values may be mappings (YAML file) or YAML/JSON strings (env, Redis).
func (m *Manager) StepOptions(ctx context.Context, workflowID, stepName string) (workflow.StepOptions, error) {
	var options workflow.StepOptions

	value, err := m.Get(ctx, StepKey(workflowID, stepName))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return options, nil
		}

		return options, err
	}

	err = decode(value, &options)
	if err != nil {
		return options, fmt.Errorf("invalid options for step %s/%s: %w", workflowID, stepName, err)
	}

	err = validate.Struct(options)
	if err != nil {
		return options, fmt.Errorf("invalid options for step %s/%s: %w", workflowID, stepName, err)
	}

	return options, nil
}

func decode(value any, out any) error {
	var data []byte

	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		encoded, err := yaml.Marshal(v)
		if err != nil {
			return err
		}

		data = encoded
	}

	return yaml.Unmarshal(data, out)
}
