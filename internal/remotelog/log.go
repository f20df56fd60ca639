// Package remotelog adapts realtime backends to a collection-oriented
// append/update/delete log with full-snapshot push notification.
//
// Paths are slash separated: "pengajuan" addresses a collection and
// "pengajuan/<key>" one entry in it. Values are flat JSON objects.
package remotelog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("remote log closed")

// Entry one child of a collection.
type Entry struct {
	Key   string
	Value map[string]any
}

// Snapshot the full state of a collection, entries ordered by key.
type Snapshot struct {
	Path    string
	Entries []Entry
}

// Exists mirrors the realtime-database notion: an empty collection does not exist.
func (s Snapshot) Exists() bool { return len(s.Entries) > 0 }

// SnapshotFunc receives every snapshot, one at a time.
type SnapshotFunc func(Snapshot)

// ErrorFunc receives subscription failures.
type ErrorFunc func(error)

// Unsubscribe releases a subscription; safe to call more than once.
type Unsubscribe func()

// Log is the realtime backend collaborator.
type Log interface {
	// Subscribe delivers the current snapshot of path and a fresh snapshot after every committed change.
	Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error)
	// Write replaces the value at an entry path.
	Write(ctx context.Context, path string, value map[string]any) error
	// Update merges fields into an existing entry; a missing entry is left untouched.
	Update(ctx context.Context, path string, partial map[string]any) error
	// Remove deletes an entry; removing a missing entry is not an error.
	Remove(ctx context.Context, path string) error
	// NewKey returns a collection-unique key without writing.
	NewKey(path string) string
}

// Child joins a collection path and key.
func Child(path, key string) string {
	return strings.TrimSuffix(path, "/") + "/" + key
}

// SplitPath splits an entry path into collection and key.
func SplitPath(path string) (collection, key string, err error) {
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("invalid entry path %q", path)
	}
	return path[:i], path[i+1:], nil
}

// newPushKey returns a time-ordered key (UUIDv7), so key order follows creation order.
func newPushKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}

func cloneValue(v map[string]any) map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
