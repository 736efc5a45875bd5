package config

import "context"

// SecretProvider resolves secret pointers to plaintext values: SSM Parameter
// Store in deployed environments, the process environment locally.
type SecretProvider interface {
	// GetParametersBatch returns key -> value for every key it could resolve.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
