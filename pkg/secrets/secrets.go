// Package secrets resolves opaque credential references from the inventory.
// The reference format decouples the pipeline from how operators store
// device passwords: "env:NAME" reads an environment variable, "file:/path"
// reads the first line of a file, anything else is taken literally.
//
// Resolved values must never be logged.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Resolver turns a credential reference into the secret it names.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// RefResolver is the default reference-based resolver.
type RefResolver struct{}

// NewResolver returns the default resolver.
func NewResolver() *RefResolver {
	return &RefResolver{}
}

// Resolve dereferences a credential reference. An empty reference resolves
// to an empty secret, which the SSH client rejects if no key auth is
// configured either.
func (r *RefResolver) Resolve(ref string) (string, error) {
	switch {
	case ref == "":
		return "", nil
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		v, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("credential environment variable %s not set", name)
		}
		return v, nil
	case strings.HasPrefix(ref, "file:"):
		path := strings.TrimPrefix(ref, "file:")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		secret, _, _ := strings.Cut(string(data), "\n")
		return strings.TrimRight(secret, "\r"), nil
	default:
		return ref, nil
	}
}

// Static resolves every reference to a fixed value; used in tests.
type Static string

func (s Static) Resolve(string) (string, error) { return string(s), nil }
