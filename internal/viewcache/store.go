// Package viewcache remembers which persistent (titled) views are already
// open on an appliance so report runs can re-attach instead of recreating
// them.
package viewcache

import "time"

// Entry is one cached (appliance, title) pair.
type Entry struct {
	Host     string
	Title    string
	Handle   string
	LastUsed time.Time
}

// Store persists cache entries. There is at most one entry per
// (host, title) pair.
type Store interface {
	// Lookup returns the entry for (host, title), if any.
	Lookup(host, title string) (Entry, bool, error)

	// Save inserts or replaces the entry keyed by (Host, Title).
	Save(e Entry) error

	// Touch refreshes the LastUsed timestamp of an entry.
	Touch(host, title string, when time.Time) error

	// DeleteHost removes every entry belonging to an appliance. Used when a
	// stale handle shows the appliance state diverged from the cache.
	DeleteHost(host string) error

	Close() error
}
