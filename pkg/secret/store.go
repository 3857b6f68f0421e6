// Package secret provides idempotent generation and durable storage of
// named credentials. A secret is generated exactly once: presence in the
// backing store always precedes generation, so re-running a deploy never
// rotates an existing value.
package secret

// Generator produces a new secret value. Generators draw from a
// cryptographically secure source; they are never invoked for a name that
// already exists in the store.
type Generator func() (string, error)

// Store is the interface for durable secret storage.
type Store interface {
	// Ensure returns the stored value for name, generating and persisting
	// it first if absent. The generator is invoked at most once per name
	// over the lifetime of the backing store.
	Ensure(name string, gen Generator) (string, error)

	// Get returns the stored value and whether it exists.
	Get(name string) (string, bool, error)

	// Keys returns all stored secret names.
	Keys() ([]string, error)
}
