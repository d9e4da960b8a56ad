package secrets

import (
	"context"
	"strings"
)

// Store keeps credential values outside the settings table
type Store interface {
	// Get returns the value and whether it exists
	Get(ctx context.Context, key string) (string, bool, error)
	// Set creates or replaces the value
	Set(ctx context.Context, key, value string) error
}

// sanitizeSecretID removes or replaces invalid characters for secret IDs
// Secret IDs can only contain alphanumeric characters, hyphens, and underscores
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}
