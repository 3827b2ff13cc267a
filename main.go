// ./main.go
package main

import (
	"github.com/weifanh/classsync-cli/cmd"
)

// main is the entry point for the classsync CLI application.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
