package main

import (
	"os"

	"github.com/mkoblar/machdoc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
