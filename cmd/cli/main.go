// dicomflow CLI - thin REST client for a running dicomflow server.
package main

import (
	"fmt"
	"os"

	"github.com/nuulab/dicomflow/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
