package auth

import (
	"context"
)

type contextKey string

const authContextKey contextKey = "helmsman_auth"

// AuthInfo holds authenticated identity information extracted from an API key.
type AuthInfo struct {
	KeyID                string
	OrganizationID       string
	TeamID               string
	UserID               string
	AllowedModels        []string
	RPMLimit             *int
	DailySpendLimitCents *int
}

// AllowsModel reports whether the key may be routed to the given model. An
// empty allow-list means every model is permitted.
func (a *AuthInfo) AllowsModel(modelID string) bool {
	if len(a.AllowedModels) == 0 {
		return true
	}
	for _, m := range a.AllowedModels {
		if m == modelID {
			return true
		}
	}
	return false
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
