//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// gracefulSignals lists the signals that trigger a clean server shutdown:
// SIGINT from the terminal and SIGTERM from process managers.
func gracefulSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// processIsAlive reports whether the process still exists. Signal 0
// performs the permission and existence checks without delivering anything.
func processIsAlive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}

// sendGracefulStop asks the server to shut down cleanly via SIGTERM.
func sendGracefulStop(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
