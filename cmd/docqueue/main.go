// Command docqueue runs the document ingestion server and its client
// commands. All logic lives in internal/cli.
package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/docqueue/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
