// Package models knows which neural models exist, where they live on disk,
// and how to fetch them.
//
// The catalog is embedded (registry.toml). Downloaded models are stored as
// one directory per model id under a root directory; bundled model
// directories shipped with an application are consulted read-only.
package models
