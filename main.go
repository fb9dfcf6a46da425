// The main package for the boardmigrate executable.
package main

import (
	"boardmigrate/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
