package dynload

import (
	"path/filepath"
	"testing"
)

func TestOpenMissingFileReturnsError(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.so"))
	if err == nil {
		t.Fatal("expected an error opening a shared object that does not exist")
	}
}
