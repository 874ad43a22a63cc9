//go:build cgo

package graph

func openKuzuBackend(path string, opts []Option) (Store, error) {
	return NewKuzuFileStore(path, opts...)
}
