package main

import (
	"os"

	"github.com/tracelake/tracelake/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
