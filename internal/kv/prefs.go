package kv

import (
	"context"
	"errors"
)

const lockoutEnabledKey = "prefs:lockout-enabled"

// LockoutEnabled reads the persisted lockout preference, returning fallback
// when the user never set one.
func LockoutEnabled(ctx context.Context, store Getter, fallback bool) (bool, error) {
	var enabled bool
	err := GetJSON(ctx, store, lockoutEnabledKey, &enabled)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	return enabled, nil
}

// SetLockoutEnabled persists the preference. It applies from the next start.
func SetLockoutEnabled(ctx context.Context, store Setter, enabled bool) error {
	return SetJSON(ctx, store, lockoutEnabledKey, enabled)
}
