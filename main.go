package main

import (
	"os"

	"github.com/packmill/packmill/cmd"
)

var version = "1.0.0"

func main() {
	if err := cmd.Execute(version); err != nil {
		os.Exit(1)
	}
}
