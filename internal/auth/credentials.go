package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Authentication modes for username/password credentials.
const (
	ModeBasic = "basic"
	ModeForm  = "form"
)

// Credentials is the content of a credentials file. Every field is optional.
type Credentials struct {
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	Token    string            `json:"token,omitempty"`
	APIKey   string            `json:"api_key,omitempty"`
	Cookies  map[string]string `json:"cookies,omitempty"`

	// Mode selects how Username and Password are used: "basic" (default) or
	// "form".
	Mode string `json:"mode,omitempty"`

	// LoginURL is the form login page. When empty the common login paths
	// are probed.
	LoginURL string `json:"login_url,omitempty"`
}

// LoadCredentials reads a JSON credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided credentials path
	if err != nil {
		return nil, authError(fmt.Errorf("failed to read credentials file: %w", err))
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, authError(fmt.Errorf("malformed credentials file %s: %w", path, err))
	}
	creds.Mode = strings.ToLower(strings.TrimSpace(creds.Mode))
	if creds.Mode != "" && creds.Mode != ModeBasic && creds.Mode != ModeForm {
		return nil, authError(fmt.Errorf("unknown auth mode %q in %s", creds.Mode, path))
	}
	return &creds, nil
}

// Override replaces the username and password when both are given.
// Command line credentials take precedence over the file.
func (c *Credentials) Override(username, password string) {
	if username == "" || password == "" {
		return
	}
	c.Username = username
	c.Password = password
}

// HasLogin reports whether a username and password are present.
func (c *Credentials) HasLogin() bool {
	return c.Username != "" && c.Password != ""
}

// IsEmpty reports whether the credentials carry nothing to authenticate with.
func (c *Credentials) IsEmpty() bool {
	return !c.HasLogin() && c.Token == "" && c.APIKey == "" && len(c.Cookies) == 0
}

// EffectiveMode returns the login mode, defaulting to basic.
func (c *Credentials) EffectiveMode() string {
	if c.Mode == "" {
		return ModeBasic
	}
	return c.Mode
}

// Template is the sample written by WriteTemplate.
var Template = Credentials{
	Username: "your_username",
	Password: "your_password",
	Token:    "your_bearer_token",
	APIKey:   "your_api_key",
	Cookies: map[string]string{
		"session_id": "your_session_id",
		"auth_token": "your_auth_token",
	},
}

// WriteTemplate writes a sample credentials file to path with mode 0600.
func WriteTemplate(path string) error {
	data, err := json.MarshalIndent(Template, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials template: %w", err)
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials template: %w", err)
	}
	return nil
}
