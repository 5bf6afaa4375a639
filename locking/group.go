// Package locking provides mutual exclusion over cache ids, used to collapse
// concurrent regenerations of the same response.
package locking

// Group runs functions with mutual exclusion over sets of keys.
type Group interface {
	// DoWithLock runs fn while holding the lock for key.
	DoWithLock(key string, fn func() (interface{}, error)) (v interface{}, err error)
}
