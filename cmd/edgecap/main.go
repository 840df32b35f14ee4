package main

import (
	"os"

	"github.com/psantana5/edgecap/cmd/edgecap/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
