// Package main is the entry point for the falcon CLI binary.
package main

import (
	"os"

	"github.com/plotly/falcon/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
