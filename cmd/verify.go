package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"devcrew/config"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify that the configuration is valid",
	Long:  `Verify parses and validates the HCL configuration files. Path can be a file or directory.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAndValidate(args[0])
		if err != nil {
			return err
		}

		var warnings []string
		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Found %d model(s)\n", len(cfg.Models))
		for _, m := range cfg.Models {
			fmt.Printf("  - %s (provider: %s, models: %v)\n", m.Name, m.Provider, m.AllowedModels)
		}
		fmt.Printf("Found %d variable(s)\n", len(cfg.Variables))
		for _, v := range cfg.Variables {
			resolved := ""
			if val, ok := cfg.ResolvedVars[v.Name]; ok && val.IsKnown() && !val.IsNull() {
				resolved = val.AsString()
			}
			if resolved == "" {
				warnings = append(warnings, fmt.Sprintf("variable '%s' has no default and no value set", v.Name))
			}
			switch {
			case v.Secret && resolved != "":
				fmt.Printf("  - %s (secret, set)\n", v.Name)
			case v.Secret:
				fmt.Printf("  - %s (secret, not set)\n", v.Name)
			default:
				fmt.Printf("  - %s = %q\n", v.Name, resolved)
			}
		}
		fmt.Printf("Found %d agent(s)\n", len(cfg.Agents))
		for _, a := range cfg.Agents {
			kind := a.Kind
			if kind == "" {
				kind = "model"
			}
			toolInfo := "no tools"
			if len(a.Tools) > 0 {
				toolInfo = fmt.Sprintf("tools: %v", a.Tools)
			}
			fmt.Printf("  - %s (%s, %s)\n", a.Name, kind, toolInfo)
		}
		fmt.Printf("Found %d groupchat(s)\n", len(cfg.GroupChats))
		for _, g := range cfg.GroupChats {
			strategy, _ := g.Strategy()
			fmt.Printf("  - %s (selection: %s, agents: %v, max rounds: %d)\n", g.Name, strategy, g.Agents, g.MaxRounds())
		}

		fmt.Printf("Execution: %s mode in %s\n", cfg.Execution.Mode, cfg.Execution.WorkDir)
		fmt.Printf("Storage: %s\n", cfg.Storage.Backend)
		if cfg.Recovery.Enabled {
			fmt.Printf("Recovery: enabled (model: %s)\n", cfg.Recovery.Model)
		}
		if cfg.Scaffold.Model != "" {
			fmt.Printf("Scaffold: %s environment (model: %s)\n", cfg.Scaffold.Environment, cfg.Scaffold.Model)
		} else {
			warnings = append(warnings, "no scaffold model set; 'devcrew run' is unavailable")
		}
		if cfg.Bridge.Enabled() {
			fmt.Printf("Bridge: %s (instance: %s)\n", cfg.Bridge.URL, cfg.Bridge.InstanceName)
		}

		if len(warnings) > 0 {
			fmt.Printf("\nWarnings:\n")
			for _, w := range warnings {
				fmt.Printf("  - %s\n", w)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
