package onnx

import (
	"os"
	"runtime"
)

// LibraryEnv names the variable that overrides the shared library path.
const LibraryEnv = "ONNXRUNTIME_LIB"

// Options configures a Runtime.
type Options struct {
	// LibraryPath is the onnxruntime shared library. Empty uses LibraryEnv,
	// then the platform default name.
	LibraryPath string
	// Threads bounds intra-op parallelism. Zero lets the runtime decide.
	Threads int
}

func (o Options) libraryPath() string {
	if o.LibraryPath != "" {
		return o.LibraryPath
	}
	if p := os.Getenv(LibraryEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
