// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/mediafit/internal/metrics"
)

// Terminate stops a running tool: SIGTERM to its group, then SIGKILL if it
// has not exited within grace. It always drains waitCh and returns the wait
// error. Safe on nil commands.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	signalGroup(cmd, syscall.SIGTERM)

	select {
	case err := <-waitCh:
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
		signalGroup(cmd, syscall.SIGKILL)
		err := <-waitCh
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	if err := Kill(cmd, sig); err != nil {
		metrics.IncProcTerminate(name, "error")
		return
	}
	metrics.IncProcTerminate(name, "sent")
}

// Bind starts cmd in its own group and makes context cancellation of an
// exec.CommandContext command signal the whole group with SIGTERM. The
// leader is killed by os/exec if it is still running after grace.
func Bind(cmd *exec.Cmd, grace time.Duration) {
	Set(cmd)
	cmd.Cancel = func() error {
		signalGroup(cmd, syscall.SIGTERM)
		return nil
	}
	cmd.WaitDelay = grace
}
