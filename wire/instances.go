package wire

import (
	"fmt"
	"runtime"
	"sync"
	"weak"
)

// RemoteIdentifierFloor splits the identifier space. This side allocates
// identifiers in [0, RemoteIdentifierFloor); the other side allocates at
// or above it, so the two ranges never collide without coordination.
const RemoteIdentifierFloor int64 = 1 << 16

// weakHandle erases the instance type of a weak reference.
type weakHandle interface {
	get() (any, bool)
}

type weakRef[T any] struct {
	p weak.Pointer[T]
}

func (w weakRef[T]) get() (any, bool) {
	v := w.p.Value()
	if v == nil {
		return nil, false
	}
	return v, true
}

type instanceEntry struct {
	weak    weakHandle
	gen     uint64
	cleanup runtime.Cleanup
}

// InstanceManager is the per-side table of proxy instances. Each tracked
// instance is held weakly under its identifier, alongside a strong copy
// used to materialize the instance again after the weak handle dies.
// When the garbage collector reclaims a tracked instance, onRemove fires
// exactly once with its identifier so the other side can drop its strong
// reference.
type InstanceManager struct {
	mu       sync.Mutex
	entries  map[int64]*instanceEntry
	strong   map[int64]any
	revivers map[int64]func() any
	nextID   int64
	genSeq   uint64
	onRemove func(identifier int64)
}

// NewInstanceManager builds an empty manager. onRemove may be nil when
// the caller has no channel to notify.
func NewInstanceManager(onRemove func(identifier int64)) *InstanceManager {
	m := &InstanceManager{onRemove: onRemove}
	m.resetLocked()
	return m
}

func (m *InstanceManager) resetLocked() {
	for _, e := range m.entries {
		e.cleanup.Stop()
	}
	m.entries = make(map[int64]*instanceEntry)
	m.strong = make(map[int64]any)
	m.revivers = make(map[int64]func() any)
	m.nextID = 0
}

// Clear empties the table without firing removal notifications. It runs
// at binding startup so a restarted side never resolves identifiers left
// over from a previous run.
func (m *InstanceManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// Register tracks a locally created instance and returns its fresh
// identifier from the local range.
func Register[T any](m *InstanceManager, instance *T) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.allocLocked()
	trackLocked(m, instance, id)
	return id
}

// RegisterRemote tracks an instance under an identifier chosen by the
// other side. The identifier must come from the remote range and must
// not already be in use.
func RegisterRemote[T any](m *InstanceManager, instance *T, identifier int64) error {
	if identifier < RemoteIdentifierFloor {
		return fmt.Errorf("wire: remote identifier %d below floor %d", identifier, RemoteIdentifierFloor)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inUseLocked(identifier) {
		return fmt.Errorf("wire: identifier %d already in use", identifier)
	}
	trackLocked(m, instance, identifier)
	return nil
}

// trackLocked installs the weak entry, the strong copy, and the reviver
// for instance under id. The cleanup closure must not reference the
// instance or it would never fire.
func trackLocked[T any](m *InstanceManager, instance *T, id int64) {
	c := *instance
	m.strong[id] = &c
	m.revivers[id] = func() any {
		s, ok := m.strong[id]
		if !ok {
			return nil
		}
		fresh := *(s.(*T))
		attachLocked(m, &fresh, id)
		return &fresh
	}
	attachLocked(m, instance, id)
}

func attachLocked[T any](m *InstanceManager, instance *T, id int64) {
	m.genSeq++
	gen := m.genSeq
	e := &instanceEntry{
		weak: weakRef[T]{p: weak.Make(instance)},
		gen:  gen,
	}
	e.cleanup = runtime.AddCleanup(instance, func(identifier int64) {
		m.collected(identifier, gen)
	}, id)
	m.entries[id] = e
}

// collected runs from the garbage collector when a tracked instance dies.
// A stale generation means the entry was already replaced or removed and
// its notification must not fire again.
func (m *InstanceManager) collected(identifier int64, gen uint64) {
	m.mu.Lock()
	e, ok := m.entries[identifier]
	if !ok || e.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.entries, identifier)
	m.mu.Unlock()
	if m.onRemove != nil {
		m.onRemove(identifier)
	}
}

// RemoveWeakReference drops the weak entry for identifier and fires the
// removal notification. It is idempotent: a second call, or a garbage
// collection racing with it, does nothing. The strong copy stays until
// Remove.
func (m *InstanceManager) RemoveWeakReference(identifier int64) {
	m.mu.Lock()
	e, ok := m.entries[identifier]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.cleanup.Stop()
	delete(m.entries, identifier)
	m.mu.Unlock()
	if m.onRemove != nil {
		m.onRemove(identifier)
	}
}

// Remove drops the strong copy for identifier, making the identifier
// terminal once the weak entry is gone too. It runs when the other side
// reports that its instance was collected.
func (m *InstanceManager) Remove(identifier int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strong, identifier)
	delete(m.revivers, identifier)
}

// GetInstance resolves identifier to a live instance. A live weak entry
// wins; otherwise a fresh instance is materialized from the strong copy
// and tracked again under the same identifier. The materialized instance
// is a new copy, so callers must not rely on pointer identity across a
// collection.
func (m *InstanceManager) GetInstance(identifier int64) (any, bool) {
	m.mu.Lock()
	if e, ok := m.entries[identifier]; ok {
		if v, alive := e.weak.get(); alive {
			m.mu.Unlock()
			return v, true
		}
		// The instance died but its cleanup has not run yet. Retire the
		// entry here and notify, then let the reviver take over.
		e.cleanup.Stop()
		delete(m.entries, identifier)
		m.mu.Unlock()
		if m.onRemove != nil {
			m.onRemove(identifier)
		}
		m.mu.Lock()
	}
	revive, ok := m.revivers[identifier]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	v := revive()
	m.mu.Unlock()
	if v == nil {
		return nil, false
	}
	return v, true
}

// IdentifierOf reports the identifier of a tracked live instance. Only
// the instance tracked by the weak entry matches; copies do not.
func (m *InstanceManager) IdentifierOf(instance any) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if v, alive := e.weak.get(); alive && v == instance {
			return id, true
		}
	}
	return 0, false
}

// Contains reports whether identifier resolves to anything, live or
// revivable.
func (m *InstanceManager) Contains(identifier int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUseLocked(identifier)
}

func (m *InstanceManager) inUseLocked(identifier int64) bool {
	if _, ok := m.entries[identifier]; ok {
		return true
	}
	_, ok := m.strong[identifier]
	return ok
}

// allocLocked hands out the next free local identifier, probing forward
// past identifiers still in use and wrapping below the remote floor.
// Panics once a full wrap finds every local identifier in use.
func (m *InstanceManager) allocLocked() int64 {
	for probed := int64(0); probed < RemoteIdentifierFloor; probed++ {
		id := m.nextID
		m.nextID = (m.nextID + 1) % RemoteIdentifierFloor
		if !m.inUseLocked(id) {
			return id
		}
	}
	panic(fmt.Sprintf("wire: all %d local identifiers in use", int64(RemoteIdentifierFloor)))
}
