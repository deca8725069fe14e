package build

import "syscall"

var (
	signalSIGTERM = syscall.SIGTERM
	signalSIGKILL = syscall.SIGKILL
)
