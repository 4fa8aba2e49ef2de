// Package schemaname derives per-tenant schema names from external entity
// identifiers. All functions are pure; the derivation must always reproduce
// the value stored in the registry.
package schemaname

import (
	"errors"
	"regexp"
	"strings"
)

// Prefix is prepended to every derived schema name.
const Prefix = "tenant_entity_"

// IDPrefix is prepended to the entity ID to form the tenant's registry ID.
const IDPrefix = "tenant_"

// Entity IDs are restricted to alphanumerics and hyphens so that the
// hyphen-to-underscore substitution can never make two distinct IDs collide.
// The length cap keeps Prefix + sanitized ID under Postgres's 63-byte
// identifier limit.
var entityIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,48}$`)

// ErrInvalidEntityID is returned for entity IDs outside the allow-list.
var ErrInvalidEntityID = errors.New("entity id must be 1-49 characters of letters, digits, and hyphens, starting with a letter or digit")

// ValidEntityID reports whether entityID is safe to derive from.
func ValidEntityID(entityID string) bool {
	return entityIDPattern.MatchString(entityID)
}

// FromEntityID validates entityID and returns its derived schema name:
// Prefix plus the ID with hyphens replaced by underscores.
func FromEntityID(entityID string) (string, error) {
	if !ValidEntityID(entityID) {
		return "", ErrInvalidEntityID
	}
	return Prefix + strings.ReplaceAll(entityID, "-", "_"), nil
}

// TenantID returns the deterministic registry ID for entityID.
func TenantID(entityID string) string {
	return IDPrefix + entityID
}

// IsTenantSchema reports whether name is in the namespace reserved for
// derived tenant schemas.
func IsTenantSchema(name string) bool {
	return strings.HasPrefix(name, Prefix)
}
