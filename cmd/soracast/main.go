// Package main is the entry point for the soracast application.
package main

import (
	"os"

	"github.com/soracast/soracast/cmd/soracast/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
