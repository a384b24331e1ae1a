package main

import (
	"os"

	"github.com/openrec/lemd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
