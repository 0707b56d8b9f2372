package onnx

import (
	"runtime"
	"strings"
	"testing"
)

func TestLibraryPath(t *testing.T) {
	if got := (Options{LibraryPath: "/opt/ort.so"}).libraryPath(); got != "/opt/ort.so" {
		t.Errorf("explicit path = %q", got)
	}

	t.Setenv(LibraryEnv, "/env/ort.so")
	if got := (Options{}).libraryPath(); got != "/env/ort.so" {
		t.Errorf("env path = %q", got)
	}

	t.Setenv(LibraryEnv, "")
	got := (Options{}).libraryPath()
	if runtime.GOOS == "linux" && !strings.HasSuffix(got, ".so") {
		t.Errorf("default path = %q", got)
	}
}
