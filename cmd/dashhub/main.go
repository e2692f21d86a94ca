// dashhub pushes live repository changes and notifications to dashboard
// clients over Server-Sent Events.
package main

import (
	"os"

	"github.com/corey/dashhub/cmd/dashhub/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
