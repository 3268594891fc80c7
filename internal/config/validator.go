package config

import (
	"fmt"
	"strings"
	"time"
)

// validProfiles допустимые имена профилей хуманизации
var validProfiles = map[string]struct{}{
	"fast":   {},
	"normal": {},
	"safe":   {},
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	var errors []string

	if c.AIBudget < 0 {
		errors = append(errors, fmt.Sprintf("ai budget must not be negative, got %d", c.AIBudget))
	}

	if c.RequestInterval < 0 {
		errors = append(errors, fmt.Sprintf("request interval must not be negative, got %s", c.RequestInterval))
	}
	if c.RequestInterval > time.Minute {
		errors = append(errors, fmt.Sprintf("request interval over a minute makes batches impractical, got %s", c.RequestInterval))
	}

	if c.HumanizerProfile != "" {
		if _, ok := validProfiles[strings.ToLower(c.HumanizerProfile)]; !ok {
			errors = append(errors, fmt.Sprintf("unknown humanizer profile %q (want fast, normal or safe)", c.HumanizerProfile))
		}
	}

	if c.GigaChatModel == "" {
		errors = append(errors, "gigachat model is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}
