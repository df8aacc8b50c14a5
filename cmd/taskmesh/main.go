// Command taskmesh runs a configured agent mesh: serve exposes it over HTTP,
// chat talks to one agent from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	root := &cobra.Command{
		Use:   "taskmesh",
		Short: "Task orchestration across a mesh of model-backed agents",
		Long: `taskmesh wires configured agents, tools and memory into a supervisor
and exposes them over HTTP or the terminal.

Configuration is read from --config, the TASKMESH_CONFIG environment
variable or ./taskmesh.yaml; without any of these, built-in defaults
apply (a single assistant on :8080 with in-process memory).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to the YAML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskmesh version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taskmesh %s\n", version)
		},
	}
}
