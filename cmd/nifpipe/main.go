// Package main is the nifpipe entry point.
package main

import (
	"os"

	"github.com/soilbiogeo/nifpipe/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
