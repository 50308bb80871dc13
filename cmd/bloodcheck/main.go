// Command bloodcheck runs Cypher query definitions against a BloodHound
// Neo4j database and manages the local database instances.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bloodcheck/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
