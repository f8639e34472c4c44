package engine

import (
	"strings"
	"testing"

	"taskline/internal/domain"
	"taskline/internal/policy"
)

func TestAuthorizationErrorNamesTheDeniedAction(t *testing.T) {
	err := &AuthorizationError{
		Identity: domain.Identity{UserID: "dev-1", Role: domain.RoleDeveloper},
		Action:   policy.ActionTaskUpdate,
	}
	msg := err.Error()
	for _, want := range []string{"deny", string(policy.ActionTaskUpdate), "dev-1", string(domain.RoleDeveloper)} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}
