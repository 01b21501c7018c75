//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// GetExitCodeProcess reports this code while the process is running.
const stillActive = 259

// gracefulSignals lists the signals that trigger a clean server shutdown.
// Windows delivers only os.Interrupt (CTRL_C_EVENT); there is no SIGTERM.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processIsAlive reports whether the process still exists by querying its
// exit code through a limited-information handle.
func processIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == stillActive
}

// sendGracefulStop stops the server process. Without SIGTERM on Windows,
// Kill (TerminateProcess) is the only portable option.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}
