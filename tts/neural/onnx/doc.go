// Package onnx runs neural model graphs with ONNX Runtime.
//
// The runtime library is loaded dynamically, so the binary builds without it
// installed. Builds without cgo get a Runtime that always fails to open.
package onnx
