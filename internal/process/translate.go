package process

import "fmt"

// exitDescriptions maps common exit codes to short human-readable text,
// used only inside synthetic error messages (crash notifications, startup
// failure logs). Unknown codes render generically.
var exitDescriptions = map[int]string{
	0:   "clean exit",
	1:   "general error",
	2:   "misuse of shell command",
	126: "command found but not executable",
	127: "command not found",
	128: "invalid exit argument",
	130: "terminated by SIGINT (Ctrl+C)",
	137: "killed by SIGKILL",
	139: "segmentation fault",
	143: "terminated by SIGTERM",
}

// signalDescriptions maps common POSIX signal names to short text.
var signalDescriptions = map[string]string{
	"terminated":         "terminated by SIGTERM",
	"killed":             "killed by SIGKILL",
	"interrupt":          "interrupted by SIGINT",
	"segmentation fault": "segmentation fault",
	"abort trap":         "aborted (SIGABRT)",
	"hangup":             "terminated by SIGHUP (hangup)",
	"broken pipe":        "terminated by SIGPIPE (broken pipe)",
	"quit":               "terminated by SIGQUIT",
}

// ExitDescription translates (code, signal) into the short human string
// used inside synthetic JSON-RPC error messages and log lines.
func ExitDescription(result ExitResult) string {
	return exitDescription(result)
}

func exitDescription(result ExitResult) string {
	if result.Signal != "" {
		if desc, ok := signalDescriptions[result.Signal]; ok {
			return desc
		}
		return fmt.Sprintf("killed by signal %s (unknown signal)", result.Signal)
	}

	if desc, ok := exitDescriptions[result.Code]; ok {
		return fmt.Sprintf("%s (exit code %d)", desc, result.Code)
	}
	return fmt.Sprintf("exit code %d (unknown error)", result.Code)
}
