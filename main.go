// Command vshark is a live network traffic viewer.
package main

import (
	"fmt"
	"os"

	"vshark/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
