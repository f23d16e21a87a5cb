package main

import (
	"fmt"
	"os"

	"github.com/lazypower/recall/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "recall: %v\n", err)
		os.Exit(1)
	}
}
