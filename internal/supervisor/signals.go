package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// installSignalHandler subscribes to SIGINT/SIGTERM. The caller is
// responsible for calling uninstallSignalHandler once it stops reading
// from the returned channel.
func installSignalHandler() chan os.Signal {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}

func uninstallSignalHandler(ch chan os.Signal) {
	signal.Stop(ch)
}
