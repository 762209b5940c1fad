// Package kvstore defines the SettingsStore port: a typed persistent
// key-value store for tuning, masks, and weights. It is an opaque
// collaborator per spec.md §1 — the core only depends on this
// interface, never on a concrete persistence format.
package kvstore

import "errors"

// ErrNotFound is returned by Get* when a key is absent. Callers
// convert this into the core's documented defaults.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the typed get/set port tuning and profile persistence use.
// Commit is implicit per Set* call.
type Store interface {
	GetFloat64(key string) (float64, error)
	SetFloat64(key string, v float64) error

	GetInt(key string) (int, error)
	SetInt(key string, v int) error

	GetString(key string) (string, error)
	SetString(key string, v string) error

	GetBool(key string) (bool, error)
	SetBool(key string, v bool) error

	// GetFloat64Array8 reads a small fixed-size array (e.g. 8 relay weights).
	GetFloat64Array8(key string) ([8]float64, error)
	SetFloat64Array8(key string, v [8]float64) error

	// GetIntSlice reads a variable-length ordered list (e.g. inputs_used).
	GetIntSlice(key string) ([]int, error)
	SetIntSlice(key string, v []int) error

	// GetBytes/SetBytes store an opaque blob (profile JSON per slot).
	GetBytes(key string) ([]byte, error)
	SetBytes(key string, v []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(key string) error
}
