package remotelog

import (
	"context"
	"sync"
)

// Op records one mutating call, for inspection in tests and dev tooling.
type Op struct {
	Kind string // "write", "update", "remove"
	Path string
}

type memorySub struct {
	path       string
	onSnapshot SnapshotFunc
	onError    ErrorFunc
	closed     bool
}

type delivery struct {
	path string
	sub  *memorySub // nil: every subscriber of path
}

// MemoryLog an in-process Log. Snapshots are delivered on the calling goroutine
// after the change commits; changes made from inside a snapshot callback are
// queued and delivered once that callback returns.
type MemoryLog struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	subs        map[*memorySub]struct{}
	pending     []delivery
	delivering  bool
	failNext    error
	ops         []Op
	closed      bool
}

// NewMemoryLog creates an empty in-process log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[*memorySub]struct{}),
	}
}

func (m *MemoryLog) Subscribe(ctx context.Context, path string, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &memorySub{path: path, onSnapshot: onSnapshot, onError: onError}
	m.subs[sub] = struct{}{}
	m.pending = append(m.pending, delivery{path: path, sub: sub})
	m.mu.Unlock()

	m.drain()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			sub.closed = true
			delete(m.subs, sub)
			m.mu.Unlock()
		})
	}, nil
}

func (m *MemoryLog) Write(ctx context.Context, path string, value map[string]any) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.precheck("write", path); err != nil {
		m.mu.Unlock()
		return err
	}
	entries, ok := m.collections[collection]
	if !ok {
		entries = make(map[string]map[string]any)
		m.collections[collection] = entries
	}
	entries[key] = cloneValue(value)
	m.pending = append(m.pending, delivery{path: collection})
	m.mu.Unlock()

	m.drain()
	return nil
}

func (m *MemoryLog) Update(ctx context.Context, path string, partial map[string]any) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.precheck("update", path); err != nil {
		m.mu.Unlock()
		return err
	}
	current, ok := m.collections[collection][key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	for k, v := range partial {
		current[k] = v
	}
	m.pending = append(m.pending, delivery{path: collection})
	m.mu.Unlock()

	m.drain()
	return nil
}

func (m *MemoryLog) Remove(ctx context.Context, path string) error {
	collection, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if err := m.precheck("remove", path); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := m.collections[collection][key]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.collections[collection], key)
	m.pending = append(m.pending, delivery{path: collection})
	m.mu.Unlock()

	m.drain()
	return nil
}

func (m *MemoryLog) NewKey(path string) string {
	return newPushKey()
}

// FailNext makes the next Write/Update/Remove return err without applying it.
func (m *MemoryLog) FailNext(err error) {
	m.mu.Lock()
	m.failNext = err
	m.mu.Unlock()
}

// Break reports err to every subscriber and drops the subscriptions.
func (m *MemoryLog) Break(err error) {
	m.mu.Lock()
	subs := make([]*memorySub, 0, len(m.subs))
	for sub := range m.subs {
		sub.closed = true
		subs = append(subs, sub)
	}
	m.subs = make(map[*memorySub]struct{})
	m.mu.Unlock()

	for _, sub := range subs {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

// Ops returns the mutating calls seen so far, including failed ones.
func (m *MemoryLog) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Op, len(m.ops))
	copy(out, m.ops)
	return out
}

// Len returns the number of entries in a collection.
func (m *MemoryLog) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.collections[collection])
}

// Close rejects further calls and drops subscriptions.
func (m *MemoryLog) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for sub := range m.subs {
		sub.closed = true
	}
	m.subs = make(map[*memorySub]struct{})
	return nil
}

// precheck must hold m.mu.
func (m *MemoryLog) precheck(kind, path string) error {
	m.ops = append(m.ops, Op{Kind: kind, Path: path})
	if m.closed {
		return ErrClosed
	}
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	return nil
}

// snapshot must hold m.mu.
func (m *MemoryLog) snapshot(path string) Snapshot {
	entries := make([]Entry, 0, len(m.collections[path]))
	for key, value := range m.collections[path] {
		entries = append(entries, Entry{Key: key, Value: cloneValue(value)})
	}
	sortEntries(entries)
	return Snapshot{Path: path, Entries: entries}
}

// drain delivers queued snapshots unless another call is already doing so.
func (m *MemoryLog) drain() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.pending) > 0 {
		d := m.pending[0]
		m.pending = m.pending[1:]

		var targets []*memorySub
		if d.sub != nil {
			if !d.sub.closed {
				targets = append(targets, d.sub)
			}
		} else {
			for sub := range m.subs {
				if sub.path == d.path {
					targets = append(targets, sub)
				}
			}
		}
		snap := m.snapshot(d.path)
		m.mu.Unlock()

		for _, sub := range targets {
			sub.onSnapshot(snap)
		}

		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}
