// Package platform speaks through the voices the operating system already
// has. A Capability drives one speech engine (espeak on Linux, say on macOS,
// System.Speech on Windows, or an in-memory fake) and Backend adapts it to
// tts.Backend for the coordinator.
package platform
