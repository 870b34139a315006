// researchtown drives research pipelines from the command line.
//
// Usage:
//
//	researchtown validate --pipeline pipeline.yaml
//	researchtown run --task "graph learning" --participants people.yaml --checkpoint ./ckpt
//	researchtown inspect ./ckpt
//	researchtown reset-roles
package main

import (
	"os"

	"github.com/jeeves-cluster-organization/researchtown/cmd/researchtown/commands"
)

// Set during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
