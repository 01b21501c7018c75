package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers Sentinel-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// audit_store_url: validates "stdout", "file://<absolute-path>", or "sqlite://<path>"
	if err := v.RegisterValidation("audit_store_url", validateAuditStoreURL); err != nil {
		return fmt.Errorf("failed to register audit_store_url validator: %w", err)
	}
	// counter_store_url: validates "memory://"
	if err := v.RegisterValidation("counter_store_url", validateCounterStoreURL); err != nil {
		return fmt.Errorf("failed to register counter_store_url validator: %w", err)
	}
	return nil
}

// validateAuditStoreURL validates the audit store URL field.
// Valid values: "stdout", "file://<absolute-path>", "sqlite://<path>"
func validateAuditStoreURL(fl validator.FieldLevel) bool {
	url := fl.Field().String()

	// "stdout" is always valid
	if url == "stdout" {
		return true
	}

	// "file://<path>" requires an absolute path
	if strings.HasPrefix(url, "file://") {
		path := strings.TrimPrefix(url, "file://")
		return path != "" && filepath.IsAbs(path)
	}

	// "sqlite://<path>" requires a non-empty path
	if strings.HasPrefix(url, "sqlite://") {
		return strings.TrimPrefix(url, "sqlite://") != ""
	}

	return false
}

// validateCounterStoreURL validates the rate limit counter store URL.
// Only the in-memory backend is supported.
func validateCounterStoreURL(fl validator.FieldLevel) bool {
	return fl.Field().String() == "memory://"
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field validation: threshold ordering
	if err := c.validateThresholdOrdering(); err != nil {
		return err
	}

	// Cross-field validation: agent ID uniqueness
	if err := c.validateAgentUniqueness(); err != nil {
		return err
	}

	return nil
}

// validateThresholdOrdering ensures the block threshold is not below the
// approval threshold; otherwise the pending band would be empty or inverted.
func (c *Config) validateThresholdOrdering() error {
	if c.Gateway.BlockThreshold < c.Gateway.ApprovalThreshold {
		return fmt.Errorf("gateway: block_threshold (%v) must be >= approval_threshold (%v)",
			c.Gateway.BlockThreshold, c.Gateway.ApprovalThreshold)
	}
	return nil
}

// validateAgentUniqueness ensures seeded agent IDs and key hashes are unique.
func (c *Config) validateAgentUniqueness() error {
	seenIDs := make(map[string]struct{}, len(c.Agents))
	seenHashes := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		if _, dup := seenIDs[a.ID]; dup {
			return fmt.Errorf("agents[%d]: duplicate agent id: %s", i, a.ID)
		}
		seenIDs[a.ID] = struct{}{}
		if _, dup := seenHashes[a.KeyHash]; dup {
			return fmt.Errorf("agents[%d]: duplicate key hash", i)
		}
		seenHashes[a.KeyHash] = struct{}{}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "audit_store_url":
		return fmt.Sprintf("%s must be 'stdout', 'file://<absolute-path>', or 'sqlite://<path>'", field)
	case "counter_store_url":
		return fmt.Sprintf("%s must be 'memory://'", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
