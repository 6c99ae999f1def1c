//go:build !linux && !darwin

package dynload

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Library is a stub on platforms without a dlopen-based implementation.
type Library struct{ path string }

// Open always fails on unsupported platforms.
func Open(path string) (*Library, error) {
	return nil, fmt.Errorf("dynload: dynamic loading not supported on %s", runtime.GOOS)
}

// EntryFunc is unused on this platform.
type EntryFunc struct{}

func (lib *Library) Lookup(symbol string) (*EntryFunc, error) {
	return nil, fmt.Errorf("dynload: dynamic loading not supported on %s", runtime.GOOS)
}

func (f *EntryFunc) Call(storePtr unsafe.Pointer) {}

func (lib *Library) Close() error { return nil }

// Path returns the filesystem path this library was opened from.
func (lib *Library) Path() string { return lib.path }
