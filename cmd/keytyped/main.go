// Command keytyped is the keytype daemon. It owns the simulated keyboard and
// serves typing requests on a per-user named pipe and, optionally, a loopback
// WebSocket.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keytyped: %v\n", err)
		os.Exit(1)
	}
}
