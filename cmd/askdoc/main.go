// Command askdoc is the entry point for the askdoc document Q&A tool.
// It provides a CLI interface (via Cobra) and an optional HTTP server
// exposing the retrieval pipeline as a REST API.
package main

import (
	"fmt"
	"os"

	"github.com/askdoc/askdoc-go/cmd/askdoc/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
