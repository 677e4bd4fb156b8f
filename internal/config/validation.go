package config

import (
	"fmt"
	"regexp"
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func validate(c *Config) error {
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be > 0")
	}
	if c.Speed <= 0 {
		return fmt.Errorf("speed must be >= 1")
	}
	if c.AdminEmail != "" && !emailRe.MatchString(c.AdminEmail) {
		return fmt.Errorf("invalid admin email %q", c.AdminEmail)
	}
	if c.Password != "" && c.Username == "" {
		return fmt.Errorf("password given without username")
	}
	return nil
}
