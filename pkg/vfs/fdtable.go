package vfs

import (
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/example/flashfs/pkg/engine"
)

const (
	// fdTableFloor is the initial slot capacity of a freshly mounted
	// instance. A non-zero capacity is also what marks an instance as
	// mounted, so the floor must never be zero.
	fdTableFloor = 4

	// fdTableGrowth is the geometric growth factor when the table is full.
	fdTableGrowth = 2

	// fdTableMax caps the slot count; descriptors are handed to callers as
	// small integers and anything near this bound indicates a leak.
	fdTableMax = 1 << 16
)

// errListCorrupt is an internal-consistency failure: a live handle was not
// reachable from the list head. This is a logic defect in this package, not
// a caller error, and the operation that detects it is aborted.
var errListCorrupt = errors.New("vfs: descriptor list inconsistent")

// fileHandle is the in-memory state of one open file. Handles are owned by
// the fdTable from the moment they are allocated and are threaded onto a
// singly linked list used for bulk teardown and path lookups.
type fileHandle struct {
	file engine.File
	hash uint32
	// path is retained for collision-exact lookups and descriptor-based
	// stat; empty when the instance runs hash-only.
	path string
	next *fileHandle
}

// fdTable maps numeric descriptors to file handles. The slot index is the
// descriptor exposed to callers, giving O(1) translation; the linked list
// gives cheap full-table iteration independent of slot capacity. Capacity
// only grows; shrinking is left unimplemented on purpose.
type fdTable struct {
	slots []*fileHandle
	count int
	head  *fileHandle
}

// pathHash is the 32-bit identity stored for every open file in place of
// (or alongside) its full path.
func pathHash(path string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(path))
	return h.Sum32()
}

// capacity returns the current slot count. Non-zero capacity doubles as the
// instance's "mounted" signal.
func (t *fdTable) capacity() int { return len(t.slots) }

// init gives the table its floor capacity. Called on mount and remount.
func (t *fdTable) init() {
	t.slots = make([]*fileHandle, fdTableFloor)
	t.count = 0
	t.head = nil
}

// allocate stores h in the first free slot, growing the slot array
// geometrically when full, and returns the slot index as the descriptor.
// Growth failure leaves the table untouched.
func (t *fdTable) allocate(h *fileHandle) (int, error) {
	if t.count+1 > len(t.slots) {
		newSize := len(t.slots) * fdTableGrowth
		if newSize < fdTableFloor {
			newSize = fdTableFloor
		}
		if newSize > fdTableMax {
			return -1, fmt.Errorf("vfs: descriptor table at limit %d: %w", fdTableMax, engine.ErrNoMem)
		}
		grown := make([]*fileHandle, newSize)
		copy(grown, t.slots)
		t.slots = grown
	}
	fd := -1
	for i, s := range t.slots {
		if s == nil {
			fd = i
			break
		}
	}
	// count < capacity guarantees a free slot exists.
	t.slots[fd] = h
	h.next = t.head
	t.head = h
	t.count++
	return fd, nil
}

// get translates a descriptor into its handle.
func (t *fdTable) get(fd int) (*fileHandle, error) {
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, fmt.Errorf("vfs: descriptor %d: %w", fd, engine.ErrBadFile)
	}
	return t.slots[fd], nil
}

// release removes the handle at fd from the slot array and the list. The
// list walk is unavoidable: positions are not indexed in the list.
func (t *fdTable) release(fd int) error {
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return fmt.Errorf("vfs: release descriptor %d: %w", fd, engine.ErrBadFile)
	}
	h := t.slots[fd]
	if h == t.head {
		t.head = h.next
	} else {
		prev := t.head
		for prev != nil && prev.next != h {
			prev = prev.next
		}
		if prev == nil {
			return errListCorrupt
		}
		prev.next = h.next
	}
	t.slots[fd] = nil
	t.count--
	h.next = nil
	h.file = nil
	return nil
}

// releaseAll drops every handle and the slot array itself. Used only during
// unmount and teardown; the engine files were already invalidated by the
// unmount, so they are not closed here.
func (t *fdTable) releaseAll() {
	for h := t.head; h != nil; {
		next := h.next
		h.next = nil
		h.file = nil
		h = next
	}
	t.head = nil
	t.slots = nil
	t.count = 0
}

// findByPath returns the descriptor currently open on path, or -1. The scan
// short-circuits on the stored hash; when paths are retained an exact
// comparison guards against collisions. In hash-only mode a collision can
// produce a false positive — an accepted approximation of the memory-lean
// configuration, not a bug.
func (t *fdTable) findByPath(path string) int {
	hash := pathHash(path)
	seen := 0
	for i, h := range t.slots {
		if seen >= t.count {
			break
		}
		if h == nil {
			continue
		}
		seen++
		if h.hash != hash {
			continue
		}
		if h.path != "" && h.path != path {
			continue
		}
		return i
	}
	return -1
}
