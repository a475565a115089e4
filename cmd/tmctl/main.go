// tmctl drives a translation memory service: imports, lookups and load
// tests from the command line.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/Translation-Memory-Service/cmd/tmctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
