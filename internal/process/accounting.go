package process

import (
	"os"
	"syscall"
	"time"
)

// Usage mirrors the resource-usage fields the source system records per
// child via wait3/getrusage: user/system time, max RSS, voluntary and
// involuntary context switches, page faults, block I/O, signals.
type Usage struct {
	UTime   time.Duration
	STime   time.Duration
	MaxRSS  int64
	IxRSS   int64
	IdRSS   int64
	IsRSS   int64
	MinFlt  int64
	MajFlt  int64
	NSwap   int64
	InBlock int64
	OuBlock int64
	MsgSnd  int64
	MsgRcv  int64
	NSignals int64
	NVCSw   int64
	NIVCSw  int64
}

// usageFromProcessState extracts resource usage from a process state's
// platform-specific rusage, zero-valued if unavailable.
func usageFromProcessState(state *os.ProcessState) Usage {
	if state == nil {
		return Usage{}
	}
	ru, ok := state.SysUsage().(*syscall.Rusage)
	if !ok || ru == nil {
		return Usage{}
	}
	return Usage{
		UTime:    time.Duration(ru.Utime.Nano()),
		STime:    time.Duration(ru.Stime.Nano()),
		MaxRSS:   int64(ru.Maxrss),
		IxRSS:    int64(ru.Ixrss),
		IdRSS:    int64(ru.Idrss),
		IsRSS:    int64(ru.Isrss),
		MinFlt:   int64(ru.Minflt),
		MajFlt:   int64(ru.Majflt),
		NSwap:    int64(ru.Nswap),
		InBlock:  int64(ru.Inblock),
		OuBlock:  int64(ru.Oublock),
		MsgSnd:   int64(ru.Msgsnd),
		MsgRcv:   int64(ru.Msgrcv),
		NSignals: int64(ru.Nsignals),
		NVCSw:    int64(ru.Nvcsw),
		NIVCSw:   int64(ru.Nivcsw),
	}
}

// ExitInfo describes how a child process ended: either a plain exit
// code, or termination by a signal (with its symbolic name when known).
type ExitInfo struct {
	ExitCode   int
	Signaled   bool
	Signal     syscall.Signal
	SignalName string
}

func exitInfoFromProcessState(state *os.ProcessState) ExitInfo {
	if state == nil {
		return ExitInfo{ExitCode: ExitCodeError}
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return ExitInfo{ExitCode: state.ExitCode()}
	}
	if ws.Signaled() {
		sig := ws.Signal()
		return ExitInfo{
			Signaled:   true,
			Signal:     sig,
			SignalName: sig.String(),
		}
	}
	return ExitInfo{ExitCode: ws.ExitStatus()}
}
