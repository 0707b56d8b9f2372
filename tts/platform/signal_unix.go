//go:build !windows

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

const canSignal = true

func suspend(p *os.Process) error { return unix.Kill(p.Pid, unix.SIGSTOP) }

func resume(p *os.Process) error { return unix.Kill(p.Pid, unix.SIGCONT) }
