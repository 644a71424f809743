package log

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// EnableDebug raises the level of L when TRACE or DEBUG is set in the
// environment. TRACE wins when both are present.
func EnableDebug() {
	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
		return
	}

	if str := os.Getenv("DEBUG"); str != "" {
		L.SetLevel(hclog.Debug)
	}
}
