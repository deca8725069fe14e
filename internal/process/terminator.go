package process

import (
	"syscall"
	"time"
)

var (
	signalSIGTERM = syscall.SIGTERM
	signalSIGKILL = syscall.SIGKILL
)

// TerminationProfile parameterizes one escalation run: close stdin, wait a
// grace period for the child to exit on its own, escalate to SIGTERM, wait a
// force period, escalate to SIGKILL, then wait a zombie timeout for the
// kernel to reap it.
type TerminationProfile struct {
	CloseStdin    bool
	GracePeriod   time.Duration
	ForcePeriod   time.Duration
	ZombieTimeout time.Duration
	ThrowOnZombie bool
}

// StopProfile is used for a deliberate shutdown: give the child a real
// chance to flush and exit cleanly before forcing it.
func StopProfile() TerminationProfile {
	return TerminationProfile{
		CloseStdin:    true,
		GracePeriod:   5 * time.Second,
		ForcePeriod:   2 * time.Second,
		ZombieTimeout: 3 * time.Second,
		ThrowOnZombie: false,
	}
}

// RestartProfile is used ahead of a hot reload: the old child only has to
// make way for the new one, so it is pushed through the escalation faster
// and a lingering zombie is treated as an error worth surfacing.
func RestartProfile() TerminationProfile {
	return TerminationProfile{
		CloseStdin:    false,
		GracePeriod:   0,
		ForcePeriod:   3 * time.Second,
		ZombieTimeout: 2 * time.Second,
		ThrowOnZombie: true,
	}
}

// Terminator drives a running Handle through its termination escalation. It
// is an interface so the Lifecycle Manager can be tested with a fake that
// resolves instantly instead of waiting out real timers.
type Terminator interface {
	Terminate(h *Handle, profile TerminationProfile) error
}

// SignalTerminator implements Terminator against real OS processes.
type SignalTerminator struct{}

// Terminate implements Terminator. It returns nil once the child has
// exited, or a KindZombieProcess error if it survives the full escalation
// and profile.ThrowOnZombie is true (otherwise it returns nil anyway,
// leaving the surviving process to the OS).
func (SignalTerminator) Terminate(h *Handle, profile TerminationProfile) error {
	if !h.IsAlive() {
		return nil
	}

	if profile.CloseStdin && h.Stdin != nil {
		_ = h.Stdin.Close()
	}

	if profile.GracePeriod > 0 {
		if exited := waitExit(h, profile.GracePeriod); exited {
			return nil
		}
	}

	_ = signalProcess(h, signalTerm)
	if exited := waitExit(h, profile.ForcePeriod); exited {
		return nil
	}

	_ = signalProcess(h, signalKill)
	if exited := waitExit(h, profile.ZombieTimeout); exited {
		return nil
	}

	if profile.ThrowOnZombie {
		return newErr(KindZombieProcess, "child survived SIGKILL and the zombie timeout", nil)
	}
	return nil
}

// waitExit blocks until h exits or d elapses, reporting which happened.
func waitExit(h *Handle, d time.Duration) bool {
	select {
	case <-h.WaitForCrash():
		return true
	case <-time.After(d):
		return false
	}
}

const (
	signalTerm = "TERM"
	signalKill = "KILL"
)

// signalProcess sends SIGTERM or SIGKILL to h's underlying process. Errors
// are ignored by callers: a process that already exited between the
// liveness check and the signal is not a failure worth surfacing.
func signalProcess(h *Handle, which string) error {
	proc := h.osProcess()
	if proc == nil {
		return nil
	}
	switch which {
	case signalTerm:
		return proc.Signal(signalSIGTERM)
	case signalKill:
		return proc.Signal(signalSIGKILL)
	}
	return nil
}
