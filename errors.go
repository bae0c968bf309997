package kubus

import (
	"fmt"

	"github.com/kubusdb/kubus/pkg/constants"
)

// ConfigurationError reports unusable Setup options.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %q is not a valid %s: %v", constants.ErrConfiguration, e.Value, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %q is not a valid %s", constants.ErrConfiguration, e.Value, e.Field)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{constants.ErrConfiguration, e.Err}
	}
	return []error{constants.ErrConfiguration}
}
