package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures every required key in the api, database, and user-info
// sections is present. Missing keys are fatal at load time.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateUserInfo(); err != nil {
		return err
	}
	return c.validateOutput()
}

func (c *Config) validateAPI() error {
	if c.API.Key == "" {
		return errors.New("api.api-key is required")
	}
	if c.API.URL == "" {
		return errors.New("api.url is required")
	}
	parsed, err := url.Parse(c.API.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.url must be an absolute URL, got %q", c.API.URL)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	missing := make([]string, 0, 5)
	if strings.TrimSpace(c.Database.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(c.Database.DBName) == "" {
		missing = append(missing, "dbname")
	}
	if strings.TrimSpace(c.Database.User) == "" {
		missing = append(missing, "user")
	}
	if c.Database.Password == "" {
		missing = append(missing, "password")
	}
	if c.Database.Port == 0 {
		missing = append(missing, "port")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required database configuration keys: %s", strings.Join(missing, ", "))
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port out of range: %d", c.Database.Port)
	}
	return nil
}

func (c *Config) validateUserInfo() error {
	if c.UserInfo.Name == "" {
		return errors.New("user-info.name is required")
	}
	return nil
}

func (c *Config) validateOutput() error {
	switch strings.ToLower(c.Output.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("output.log_format must be console or json, got %q", c.Output.LogFormat)
	}
	return nil
}
