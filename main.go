package main

import (
	"os"

	"github.com/ovenlight/expeditor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
