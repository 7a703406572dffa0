package auth

import (
	"fmt"
	"strings"
)

// Kind classifies the caller a Role acts for.
type Kind string

const (
	KindService Kind = "service"
	KindUser    Kind = "user"

	// DefaultKind applies to unauthenticated and background callers.
	DefaultKind = KindService

	serviceOwner = "_service"
)

// Role is the caller identity passed through to the secrets store and used
// for log correlation. The registry never mutates it.
type Role struct {
	UserID      string
	WorkspaceID string
	Kind        Kind
}

// ServiceRole returns the default role for service context callers.
func ServiceRole() Role {
	return Role{Kind: DefaultKind}
}

// UserRole returns a role acting on behalf of userID.
func UserRole(userID string) Role {
	return Role{UserID: strings.TrimSpace(userID), Kind: KindUser}
}

// ParseKind normalizes raw into a Kind. Empty input yields DefaultKind.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return DefaultKind, nil
	case KindService:
		return KindService, nil
	case KindUser:
		return KindUser, nil
	default:
		return "", fmt.Errorf("role kind must be one of: service, user")
	}
}

// Normalize fills defaults and trims identifiers.
func (r Role) Normalize() Role {
	r.UserID = strings.TrimSpace(r.UserID)
	r.WorkspaceID = strings.TrimSpace(r.WorkspaceID)
	if r.Kind == "" {
		r.Kind = DefaultKind
	}
	return r
}

// Validate reports whether the role is usable for secret scoping.
func (r Role) Validate() error {
	r = r.Normalize()
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if r.Kind == KindUser && r.UserID == "" {
		return fmt.Errorf("user role requires a user id")
	}
	return nil
}

// OwnerID is the namespace secrets are stored under for this role.
// User roles own their secrets; service roles share one namespace.
func (r Role) OwnerID() string {
	r = r.Normalize()
	if r.UserID == "" {
		return serviceOwner
	}
	return r.UserID
}
