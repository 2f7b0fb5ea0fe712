package hdf5

import (
	"strings"
	"sync"
)

// arenaEntry is one node's bookkeeping in a File's flat arena. Parent is
// recorded as an arena index rather than a pointer, so closing the file
// can invalidate every node in one step instead of walking a pointer tree.
type arenaEntry struct {
	name   string
	parent int // -1 for the root.
	obj    Object
}

// arena is the flat table backing every Group, Dataset, SoftLink and
// ExternalLink reachable from one File's root. Every node holds its own
// index into this table plus a pointer back to the owning File; Path and
// Parent are reconstructed by walking parent indices, never by storing a
// pointer chain that Close would have to tear down.
type arena struct {
	mu      sync.Mutex
	entries []arenaEntry
	closed  bool
}

func newArena() *arena {
	return &arena{}
}

// add registers a new node under parent (-1 for the root) and returns its
// index. The root of a fresh arena always lands at index 0.
func (a *arena) add(name string, parent int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, arenaEntry{name: name, parent: parent})
	return len(a.entries) - 1
}

// bind associates idx with the concrete node value that owns it, so
// Parent() can hand back the actual *Group rather than just its name.
func (a *arena) bind(idx int, obj Object) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[idx].obj = obj
}

// path reconstructs the absolute, slash-separated path of idx by walking
// parent links back to the root. The root's path is always "/".
func (a *arena) path(idx int) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if idx == 0 {
		return "/"
	}

	var segments []string
	for i := idx; i > 0; i = a.entries[i].parent {
		segments = append(segments, a.entries[i].name)
	}

	var b strings.Builder
	for i := len(segments) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(segments[i])
	}
	return b.String()
}

// parentOf returns the parent node of idx, or ok=false at the root.
func (a *arena) parentOf(idx int) (Object, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pIdx := a.entries[idx].parent
	if pIdx < 0 {
		return nil, false
	}
	return a.entries[pIdx].obj, true
}

func (a *arena) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// close marks every node in the arena closed in one step; subsequent
// Group/Dataset/SoftLink operations check this flag before touching the
// file and return a Closed error instead of risking a stale *os.File.
func (a *arena) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}
