package main

import (
	"os"

	"github.com/JoeHelbing/phd-advisor-analyzer-agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
