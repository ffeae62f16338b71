package main

import (
	"fmt"
	"os"

	"github.com/temirov/ctxtree/internal/cli"
)

func main() {
	if applicationExecutionError := cli.Execute(); applicationExecutionError != nil {
		fmt.Fprintln(os.Stderr, applicationExecutionError)
		os.Exit(1)
	}
}
