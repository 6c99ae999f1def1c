//go:build linux || darwin

// Package dynload opens a shared object produced by the external HL build
// tool and resolves its per-eval entry symbol. This is an OS dynamic-
// loading boundary: no retrieved third-party library offers dlopen/dlsym,
// since that is fundamentally a cgo/syscall concern rather than a
// library-shaped one (see DESIGN.md).
package dynload

/*
#include <dlfcn.h>
#include <stdlib.h>

typedef void (*entry_fn)(void *store);

static void call_entry(entry_fn fn, void *store) {
    fn(store);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Library is an open handle to a shared object loaded with dlopen.
type Library struct {
	handle unsafe.Pointer
	path   string
}

// Open dlopen()s the shared object at path with RTLD_NOW|RTLD_LOCAL so
// symbol resolution failures surface immediately rather than on first call.
func Open(path string) (*Library, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	handle := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, fmt.Errorf("dynload: dlopen %s: %s", path, C.GoString(C.dlerror()))
	}
	return &Library{handle: handle, path: path}, nil
}

// EntryFunc is a resolved `extern "C" fn(store: &mut VariableStore)` symbol.
type EntryFunc struct {
	lib *Library
	sym unsafe.Pointer
}

// Lookup resolves symbol within lib.
func (lib *Library) Lookup(symbol string) (*EntryFunc, error) {
	csym := C.CString(symbol)
	defer C.free(unsafe.Pointer(csym))

	C.dlerror() // clear any existing error
	ptr := C.dlsym(lib.handle, csym)
	if err := C.dlerror(); err != nil {
		return nil, fmt.Errorf("dynload: dlsym %s: %s", symbol, C.GoString(err))
	}
	return &EntryFunc{lib: lib, sym: ptr}, nil
}

// Call invokes the entry function, passing storePtr as its single opaque
// argument. storePtr must point at a representation of the Variable Store
// the generated entry function's downcast calls expect; the child binary
// is responsible for keeping that representation's layout in sync with
// what the composer emitted.
func (f *EntryFunc) Call(storePtr unsafe.Pointer) {
	C.call_entry(C.entry_fn(f.sym), storePtr)
}

// Path returns the filesystem path this library was opened from.
func (lib *Library) Path() string { return lib.path }

// Close dlclose()s the library. Per the toolchain driver's artifact
// retention policy, callers may choose not to close a library immediately
// so repeated evals against the same build avoid reload overhead.
func (lib *Library) Close() error {
	if C.dlclose(lib.handle) != 0 {
		return fmt.Errorf("dynload: dlclose %s: %s", lib.path, C.GoString(C.dlerror()))
	}
	return nil
}
