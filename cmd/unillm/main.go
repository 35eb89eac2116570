// Package main is the entry point for unillm.
package main

import (
	"os"

	"github.com/liteclaw/unillm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
