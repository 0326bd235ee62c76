// Command keytype sends typing requests to keytyped, or runs them in-process
// with --local.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "keytype: %v\n", err)
		os.Exit(1)
	}
}
