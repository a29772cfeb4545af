package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"devcrew/internal/logging"
	"devcrew/workflow"
)

var (
	runConfigPath  string
	runDescription string
	runMode        string
	runEnvironment string
	runWorkDir     string
	runDebug       bool
	runRecover     bool
)

var runCmd = &cobra.Command{
	Use:   "run <project-name>",
	Short: "Scaffold a project with the agent crew",
	Long: `Gather a project description interactively, then let the stage agents
(template, tester and, in docker environments, docker) create the project
one stage at a time. Commands proposed by the agents run in the working
directory according to the execution mode.

The scaffold block of the config selects the model; --env and --mode
override the config.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectName := args[0]
		cfg, err := loadConfig(runConfigPath)
		if err != nil {
			return err
		}
		if runEnvironment != "" {
			cfg.Scaffold.Environment = runEnvironment
			if err := cfg.Scaffold.Validate(cfg.Models); err != nil {
				return err
			}
		}
		if cfg.Scaffold.Model == "" {
			return errors.New("the scaffold block must name a 'model' to run the scaffolding crew")
		}

		ctx, stepper, stop := interruptible(context.Background())
		defer stop()

		var debugName string
		if runDebug {
			debugName = projectName
		}
		rt, err := newRuntime(ctx, runtimeOptions{
			Config:      cfg,
			Mode:        runMode,
			WorkDir:     runWorkDir,
			ProjectName: projectName,
			Recover:     runRecover,
			DebugName:   debugName,
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		description := runDescription
		if description == "" {
			if description, err = rt.input.Ask("Describe the project:"); err != nil {
				return err
			}
		}

		scaffold, err := workflow.NewScaffold(workflow.Options{
			Settings: cfg.Scaffold,
			Sessions: workflow.ProviderSessions(rt.providers, cfg.Scaffold.Model),
			Input:    rt.input,
			Executor: rt.executor,
			Mode:     rt.mode,
			Recovery: rt.recovery,
			Handler:  rt.chat,
			OnStage:  workflow.NotifyStages(rt.stages),
			Stepper:  stepper,
			Events:   rt.debug,
			Cache:    rt.cache,
			Logger:   logging.New("scaffold"),
		})
		if err != nil {
			return err
		}

		res, err := scaffold.Run(ctx, projectName, description)
		printScaffoldResult(res)
		if err != nil {
			return err
		}
		if !res.Succeeded() {
			return fmt.Errorf("project generation stopped after %d of %d stages", len(res.Completed), len(res.Stages))
		}
		return nil
	},
}

func printScaffoldResult(res *workflow.Result) {
	if res == nil {
		return
	}
	fmt.Println()
	if res.Description != "" {
		fmt.Println("Project description:")
		fmt.Println(res.Description)
		fmt.Println()
	}
	if len(res.Stages) > 0 {
		fmt.Printf("Stages completed: %d/%d", len(res.Completed), len(res.Stages))
		if len(res.Completed) > 0 {
			fmt.Printf(" (%s)", strings.Join(res.Completed, ", "))
		}
		fmt.Println()
	}
	if res.Build != nil {
		fmt.Printf("Build chat %s after %d rounds\n", res.Build.State, res.Build.Rounds)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", ".", "Path to config file or directory")
	runCmd.Flags().StringVarP(&runDescription, "description", "d", "", "Project description (asked for when empty)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Execution mode: all, step or script (overrides config)")
	runCmd.Flags().StringVar(&runEnvironment, "env", "", "Target environment: normal or docker (overrides config)")
	runCmd.Flags().StringVar(&runWorkDir, "dir", "", "Working directory for commands (overrides config)")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Write events and transcripts to debug/<project>_<timestamp>")
	runCmd.Flags().BoolVar(&runRecover, "recover", false, "Repair failed command groups even when the config leaves recovery off")
}
