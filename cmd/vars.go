package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"devcrew/config"
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Manage variables",
	Long: `Manage the variable values stored in ~/.devcrew/vars.txt (or
$DEVCREW_HOME/vars.txt). A stored value overrides the default of the
variable block with the same name, which is how provider API keys reach
model blocks.`,
}

var varsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all variables",
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := config.LoadVarsFromFile()
		if err != nil {
			return err
		}
		names, err := config.ListVars()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No variables set")
			return nil
		}
		for _, name := range names {
			fmt.Printf("%s=%s\n", name, maskValue(name, vars[name]))
		}
		return nil
	},
}

// maskValue hides values whose names look like credentials
func maskValue(name, value string) string {
	for _, suffix := range []string{"_key", "_token", "_secret", "_password"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			return "********"
		}
	}
	return value
}

var varsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a variable value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := config.GetVar(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var varsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Set a variable value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetVar(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Variable '%s' set\n", args[0])
		return nil
	},
}

var varsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a variable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.DeleteVar(args[0]); err != nil {
			return err
		}
		fmt.Printf("Variable '%s' deleted\n", args[0])
		return nil
	},
}

var varsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the location of the variables file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.GetVarsFilePath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(varsCmd)
	varsCmd.AddCommand(varsListCmd, varsGetCmd, varsSetCmd, varsDeleteCmd, varsPathCmd)
}
