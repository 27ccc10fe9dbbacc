package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves secret references straight from process environment
// variables. Local development uses it in place of the SSM provider so a .env
// file is all a developer needs.
type EnvVarProvider struct{}

// NewEnvVarProvider creates an EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Unset keys are left
// out of the result; the loader decides whether a missing parameter is fatal.
// The context goes unused since environment reads cannot block.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		values[key] = v
	}
	return values, nil
}
