package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, not here; validation
// accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.TCP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	// A frame carries the upload base64 encoded, so it must fit the largest
	// allowed file.
	if frame := cfg.Adapters.TCP.MaxFrameSize; frame > 0 {
		if need := base64Len(cfg.Limits.MaxFileSize); frame < need {
			return fmt.Errorf("adapters.tcp.max_frame_size %d cannot carry limits.max_file_size %d (needs at least %d)",
				frame, cfg.Limits.MaxFileSize, need)
		}
	}

	switch cfg.Scanner.Type {
	case "clamd":
		if cfg.Scanner.ClamdAddress == "" {
			return fmt.Errorf("scanner: clamd_address is required when type is clamd")
		}
	case "exec":
		if cfg.Scanner.Path == "" {
			return fmt.Errorf("scanner: path is required when type is exec")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Adapters.TCP.Port {
		return fmt.Errorf("metrics: port %d conflicts with the TCP adapter", cfg.Metrics.Port)
	}

	return nil
}

func base64Len(n int64) int64 {
	return (n + 2) / 3 * 4
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
