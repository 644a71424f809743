package log

import (
	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name: "nachos",
	})
	L.SetLevel(hclog.Info)

	EnableDebug()
}

// Named returns a sub-logger of L for a single kernel component.
func Named(name string) hclog.Logger {
	return L.Named(name)
}
