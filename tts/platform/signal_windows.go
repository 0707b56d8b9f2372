//go:build windows

package platform

import (
	"errors"
	"os"
)

const canSignal = false

var errNoSignals = errors.New("process suspension is not available on windows")

func suspend(*os.Process) error { return errNoSignals }

func resume(*os.Process) error { return errNoSignals }
