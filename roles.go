package tokenauth

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RoleSource returns the role names granted to a principal. An unknown
// principal has no roles; errors are reserved for backing-store failures.
type RoleSource interface {
	RolesFor(ctx context.Context, principalID string) ([]string, error)
}

// RoleSourceFunc adapts a function to RoleSource.
type RoleSourceFunc func(ctx context.Context, principalID string) ([]string, error)

// RolesFor calls f.
func (f RoleSourceFunc) RolesFor(ctx context.Context, principalID string) ([]string, error) {
	return f(ctx, principalID)
}

// StaticRoles is an in-memory RoleSource.
type StaticRoles map[string][]string

// RolesFor implements RoleSource.
func (s StaticRoles) RolesFor(_ context.Context, principalID string) ([]string, error) {
	return append([]string{}, s[principalID]...), nil
}

const defaultRoleKeyPrefix = "tokenauth:roles:"

// RedisRoleSource reads role names from a Redis set per principal.
type RedisRoleSource struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRoleSource returns a role source reading the set stored at
// prefix+principalID. An empty prefix uses "tokenauth:roles:".
func NewRedisRoleSource(client redis.Cmdable, prefix string) *RedisRoleSource {
	if prefix == "" {
		prefix = defaultRoleKeyPrefix
	}
	return &RedisRoleSource{client: client, prefix: prefix}
}

// RolesFor implements RoleSource. Roles are returned sorted.
func (r *RedisRoleSource) RolesFor(ctx context.Context, principalID string) ([]string, error) {
	roles, err := r.client.SMembers(ctx, r.prefix+principalID).Result()
	if err != nil {
		return nil, fmt.Errorf("load roles for %q: %w", principalID, err)
	}
	sort.Strings(roles)
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}

// GrantRoles adds roles to a principal's set.
func (r *RedisRoleSource) GrantRoles(ctx context.Context, principalID string, roles ...string) error {
	if len(roles) == 0 {
		return nil
	}
	members := make([]any, len(roles))
	for i, role := range roles {
		members[i] = role
	}
	if err := r.client.SAdd(ctx, r.prefix+principalID, members...).Err(); err != nil {
		return fmt.Errorf("grant roles to %q: %w", principalID, err)
	}
	return nil
}
