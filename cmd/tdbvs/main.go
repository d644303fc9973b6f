// Package main provides the entry point for the tdbvs CLI.
package main

import (
	"os"

	"github.com/dudoslav/TileDB-Vector-Search/cmd/tdbvs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
