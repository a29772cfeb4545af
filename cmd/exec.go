package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"devcrew/command"
	"devcrew/config"
)

var (
	execConfigPath string
	execMode       string
	execWorkDir    string
	execRecover    bool
)

var execCmd = &cobra.Command{
	Use:   "exec <batch.json|batch.yaml>",
	Short: "Run a command batch file",
	Long: `Run the command groups of a batch file in dependency order, the same
way a human proxy runs the batches an agent proposes. In step mode each
group is confirmed first; in script mode the batch is written to
<project>_setup.sh instead of being run.

A config is only read when --config is given; it supplies execution
settings, storage and the recovery model used by --recover.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := command.LoadFile(args[0])
		if err != nil {
			return err
		}

		var cfg *config.Config
		if cmd.Flags().Changed("config") {
			if cfg, err = loadConfig(execConfigPath); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, runtimeOptions{
			Config:  cfg,
			Mode:    execMode,
			WorkDir: execWorkDir,
			Recover: execRecover,
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		fmt.Println(command.FormatSummary(batch))
		fmt.Println()

		report, err := rt.executor.Execute(ctx, batch, rt.mode)
		if err != nil {
			return err
		}
		if report.ScriptPath != "" {
			fmt.Printf("Script written to %s\n", report.ScriptPath)
			return nil
		}

		if len(report.FailedGroups) > 0 && rt.recovery != nil {
			outcome, err := rt.recovery.Recover(ctx, batch, report)
			if err != nil {
				return fmt.Errorf("recovery: %w", err)
			}
			report = outcome.Report
		}

		fmt.Println()
		fmt.Println(command.FormatReport(report))
		if report.Failed() {
			return fmt.Errorf("batch did not complete: %d groups failed, %d skipped",
				len(report.FailedGroups), len(report.Names(command.StatusSkipped)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVarP(&execConfigPath, "config", "c", ".", "Path to config file or directory")
	execCmd.Flags().StringVar(&execMode, "mode", "", "Execution mode: all, step or script")
	execCmd.Flags().StringVar(&execWorkDir, "dir", "", "Working directory for commands")
	execCmd.Flags().BoolVar(&execRecover, "recover", false, "Repair failed groups with the recovery model")
}
