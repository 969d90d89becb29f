package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/gcov-collect/cmd/gcovcollect/app"
)

func main() {
	if err := app.NewGcovCollectCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
