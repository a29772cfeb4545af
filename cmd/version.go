package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`devcrew %s

Coordinates language-model agents through a turn-based group chat to
scaffold software projects, and runs (and repairs) the shell commands
they propose.

Define models, agents and group chats in HCL configuration files,
then run them with simple commands.

Examples:
  devcrew run todo-api -d "A REST API for todos in Go" -c ./config
  devcrew chat review -m "Review the build scripts" -c ./config
  devcrew exec batch.yaml --mode step
  devcrew vars set anthropic_api_key sk-...
`, Version)
}
