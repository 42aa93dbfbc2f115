// Command taskvoiced runs the voice assistant without the desktop shell.
//
// Usage:
//
//	taskvoiced serve              start the HTTP API and event stream
//	taskvoiced threads list       list conversation threads
//	taskvoiced usage              fetch usage telemetry once
//	taskvoiced prefs lockout on   toggle the passphrase gate
package main

import (
	"fmt"
	"os"

	"taskvoice/cmd/taskvoiced/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
