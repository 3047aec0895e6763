// Package rolecache caches role-permission snapshots for the authorization
// guard. Entries expire by TTL only; there is no proactive invalidation, so
// a role edit becomes visible within one TTL at most.
package rolecache

import (
	"context"
	"errors"
)

// ErrNilLoader is returned by constructors when no loader is supplied.
var ErrNilLoader = errors.New("nil role loader")

// Snapshot is one cached role: its identity plus the permission set keyed
// by PermissionKey(path, method).
type Snapshot struct {
	RoleID      int64           `json:"role_id"`
	Name        string          `json:"name"`
	Permissions map[string]bool `json:"permissions"`
}

// Allows reports whether the snapshot grants path+method.
func (s *Snapshot) Allows(path, method string) bool {
	if s == nil {
		return false
	}
	return s.Permissions[PermissionKey(path, method)]
}

// Loader fetches a role snapshot from the source of truth on cache miss.
type Loader func(ctx context.Context, roleID int64) (*Snapshot, error)

// Cache resolves role snapshots, serving from cache within the TTL.
type Cache interface {
	Get(ctx context.Context, roleID int64) (*Snapshot, error)
}

// PermissionKey builds the lookup key for one route permission.
func PermissionKey(path, method string) string {
	return path + ":" + method
}
