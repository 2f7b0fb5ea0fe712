package hdf5

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/hdf5/internal/utils"
)

// buildTestTree wires up a minimal in-memory tree (root -> g1 -> d1, and a
// soft link at root pointing at /g1/d1) the way loadModernGroup would,
// without needing a real HDF5 file on disk.
func buildTestTree() (*File, *Group, *Group, *Dataset, *SoftLink) {
	f := &File{arena: newArena()}

	rootIdx := f.arena.add("/", -1)
	root := &Group{file: f, name: "/", idx: rootIdx}
	f.arena.bind(rootIdx, root)
	f.root = root

	g1Idx := f.arena.add("g1", rootIdx)
	g1 := &Group{file: f, name: "g1", idx: g1Idx}
	f.arena.bind(g1Idx, g1)
	root.children = append(root.children, g1)

	d1Idx := f.arena.add("d1", g1Idx)
	d1 := &Dataset{file: f, name: "d1", idx: d1Idx}
	f.arena.bind(d1Idx, d1)
	g1.children = append(g1.children, d1)

	linkIdx := f.arena.add("link", rootIdx)
	link := &SoftLink{file: f, name: "link", idx: linkIdx, targetPath: "/g1/d1", resolveOnce: utils.NewLazy[Object]()}
	f.arena.bind(linkIdx, link)
	root.children = append(root.children, link)

	return f, root, g1, d1, link
}

func TestNodeTree_PathLaw(t *testing.T) {
	_, root, g1, d1, _ := buildTestTree()

	require.Equal(t, "/", root.Path())
	require.Equal(t, "/g1", g1.Path())
	require.Equal(t, "/g1/d1", d1.Path())

	parent, ok := d1.Parent()
	require.True(t, ok)
	require.Equal(t, parent.Path()+"/"+d1.Name(), d1.Path())
}

func TestNodeTree_RootHasNoParent(t *testing.T) {
	_, root, _, _, _ := buildTestTree()
	_, ok := root.Parent()
	require.False(t, ok)
}

func TestNodeTree_GroupParentRoundTrips(t *testing.T) {
	_, root, g1, _, _ := buildTestTree()
	parent, ok := g1.Parent()
	require.True(t, ok)
	require.Same(t, root, parent)
}

func TestNodeTree_SoftLinkResolvesToTarget(t *testing.T) {
	_, _, _, d1, link := buildTestTree()

	resolved, err := link.Resolve()
	require.NoError(t, err)
	require.Same(t, d1, resolved)

	// Cached: a second call returns the same object without re-walking.
	again, err := link.Resolve()
	require.NoError(t, err)
	require.Same(t, resolved, again)
}

func TestNodeTree_SoftLinkDanglingTargetYieldsNotFound(t *testing.T) {
	f, root, _, _, _ := buildTestTree()

	idx := f.arena.add("broken", root.idx)
	link := &SoftLink{file: f, name: "broken", idx: idx, targetPath: "/does/not/exist", resolveOnce: utils.NewLazy[Object]()}
	f.arena.bind(idx, link)
	root.children = append(root.children, link)

	_, err := link.Resolve()
	require.Error(t, err)

	var he *Error
	require.True(t, errors.As(err, &he))
	require.Equal(t, KindNotFound, he.Kind)
}

func TestNodeTree_ClosedPropagatesIndependentOfNodeTouched(t *testing.T) {
	f, root, g1, d1, link := buildTestTree()
	f.arena.close()

	_, err := root.Child("g1")
	requireClosed(t, err)

	_, err = g1.Attributes()
	requireClosed(t, err)

	_, err = d1.Attributes()
	requireClosed(t, err)

	_, err = link.Resolve()
	requireClosed(t, err)
}

func requireClosed(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var he *Error
	require.True(t, errors.As(err, &he))
	require.Equal(t, KindClosed, he.Kind)
}
