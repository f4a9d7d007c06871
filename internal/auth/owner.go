// Package auth carries the acting owner through request contexts and
// authenticates HTTP callers.
package auth

import (
	"context"
	"fmt"

	"github.com/starford/nota/internal/apperr"
)

type ownerKey struct{}

// WithOwner returns a context scoped to owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFrom returns the owner stored in ctx, if any.
func OwnerFrom(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok && owner != ""
}

// RequireOwner returns the owner in ctx or an ErrNotAuthenticated error.
func RequireOwner(ctx context.Context) (string, error) {
	owner, ok := OwnerFrom(ctx)
	if !ok {
		return "", fmt.Errorf("auth: no owner in context: %w", apperr.ErrNotAuthenticated)
	}
	return owner, nil
}
