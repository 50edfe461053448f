package models

import (
	"strings"
	"time"
)

// Admin API permissions
const (
	PermQuestionsRead  = "questions:read"
	PermQuestionsWrite = "questions:write"
	PermUsersRead      = "users:read"
	PermUsersWrite     = "users:write"
)

// ApiClient is an admin integration authenticated by API key.
// Question management and premium toggling go through these clients,
// regular users authenticate with JWT.
type ApiClient struct {
	ID          int        `json:"id"`
	Name        string     `json:"name"`
	ApiKey      string     `json:"-"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	Permissions []string   `json:"permissions"`
}

// HasPermission checks a permission, honouring "*" and "scope:*" grants
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}

	scope, _, _ := strings.Cut(required, ":")
	for _, perm := range c.Permissions {
		switch perm {
		case required, "*", scope + ":*":
			return true
		}
	}
	return false
}

// MaskedApiKey returns first 8 characters of API key for logging
func (c *ApiClient) MaskedApiKey() string {
	return MaskKey(c.ApiKey)
}

// MaskKey shortens a secret for log output
func MaskKey(key string) string {
	if len(key) < 8 {
		return "***"
	}
	return key[:8] + "..."
}
