// Package main provides the entry point for the eventmq scheduler.
package main

import (
	"os"

	"github.com/jacobdh/eventmq/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
