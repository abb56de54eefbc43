package config

import "fmt"

// ConfigurationError reports an invalid build configuration. It is always
// fatal: nothing is built or served.
type ConfigurationError struct {
	// Subject names the file, preset or task the problem was found in.
	Subject string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.Subject, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
