// sessionctl is a device-side client for the session subsystem. Each invocation acts as one
// device: its cache (CACHE_BACKEND, CACHE_DIR, DEVICE_ID) holds that device's current session.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
