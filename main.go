package main

import (
	"os"

	"github.com/evsim/cpsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
