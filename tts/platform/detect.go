package platform

import (
	"context"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/tts"
)

// Driver names accepted by New.
const (
	DriverAuto   = "auto"
	DriverESpeak = "espeak"
	DriverSay    = "say"
	DriverSAPI   = "sapi"
	DriverFake   = "fake"
)

// New returns the named driver. "auto" and "" pick the driver for the
// running OS.
func New(name string, logger *log.Logger) (Capability, error) {
	switch strings.ToLower(name) {
	case "", DriverAuto, "platform":
		return Detect(logger), nil
	case DriverESpeak:
		return NewESpeak(logger), nil
	case DriverSay:
		return NewSay(logger), nil
	case DriverSAPI:
		return NewSAPI(logger), nil
	case DriverFake:
		return NewFake(), nil
	default:
		return nil, tts.Errorf(tts.KindNotSupported, "unknown speech driver %q", name)
	}
}

// Detect returns the driver for runtime.GOOS. Whether its engine is
// installed is only known after Initialize.
func Detect(logger *log.Logger) Capability {
	switch runtime.GOOS {
	case "darwin":
		return NewSay(logger)
	case "windows":
		return NewSAPI(logger)
	default:
		return NewESpeak(logger)
	}
}

// Available reports whether the driver's engine can be used here.
func Available(ctx context.Context, c Capability) bool {
	return c.Initialize(ctx) == nil
}
