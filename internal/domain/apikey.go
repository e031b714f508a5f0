package domain

import "time"

// Permission is a single capability flag attached to an API key. Permissions
// are independent flags, not a hierarchy.
type Permission string

const (
	PermissionRead   Permission = "read"
	PermissionWrite  Permission = "write"
	PermissionDelete Permission = "delete"
)

// ValidPermission reports whether p is one of the known flags.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionRead, PermissionWrite, PermissionDelete:
		return true
	}
	return false
}

// APIKey is a credential granting a set of permissions. Keys are scoped to the
// running registry unless a KeyPersistence adapter is configured.
type APIKey struct {
	Key         string       `json:"key"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Has reports whether the key carries the given permission.
func (k APIKey) Has(p Permission) bool {
	for _, have := range k.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// AuthResult is the successful outcome of authenticating a presented key.
type AuthResult struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}
