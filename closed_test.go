package hdf5

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scigolib/hdf5/internal/utils"
)

// TestClosed_EveryDatasetOperationReturnsClosedAfterClose checks that a
// Dataset obtained before Close still fails safely (classified Closed
// error) on every subsequent access, instead of a nil-pointer panic on
// the file's now-nil *os.File.
func TestClosed_EveryDatasetOperationReturnsClosedAfterClose(t *testing.T) {
	f := &File{arena: newArena()}
	rootIdx := f.arena.add("/", -1)
	root := &Group{file: f, name: "/", idx: rootIdx}
	f.arena.bind(rootIdx, root)
	f.root = root

	dIdx := f.arena.add("d1", rootIdx)
	ds := &Dataset{file: f, name: "d1", idx: dIdx, cacheOnce: utils.NewLazy[*chunkCacheHolder]()}
	f.arena.bind(dIdx, ds)
	root.children = append(root.children, ds)

	require.NoError(t, f.Close())

	ops := map[string]func() error{
		"Attributes": func() error { _, err := ds.Attributes(); return err },
		"ListAttributes": func() error {
			_, err := ds.ListAttributes()
			return err
		},
		"Read":        func() error { _, err := ds.Read(); return err },
		"ReadStrings": func() error { _, err := ds.ReadStrings(); return err },
		"ReadCompound": func() error {
			_, err := ds.ReadCompound()
			return err
		},
		"ReadRaw":     func() error { _, err := ds.ReadRaw(); return err },
		"Dimensions":  func() error { _, err := ds.Dimensions(); return err },
		"Datatype":    func() error { _, err := ds.Datatype(); return err },
		"Info":        func() error { _, err := ds.Info(); return err },
		"GroupChild":  func() error { _, err := root.Child("d1"); return err },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			var he *Error
			require.True(t, errors.As(err, &he))
			require.Equal(t, KindClosed, he.Kind)
		})
	}
}

func TestClosed_CloseIsIdempotent(t *testing.T) {
	f := &File{arena: newArena()}
	_ = f.Close()
	require.NoError(t, f.Close())
}
