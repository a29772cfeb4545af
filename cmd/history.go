package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"devcrew/store"
)

var (
	historyConfigPath string
	historyLimit      int
	historyOffset     int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded chat runs",
	Long: `List the chat runs recorded by the configured storage backend, newest
first. Runs are only kept across invocations with the sqlite or postgres
backends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer stores.Close()

		runs, total, err := stores.Chats.ListRuns(historyLimit, historyOffset)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %-20s %-10s %3d rounds  %s\n",
				r.ID, truncateName(r.ChatName, 20), r.Status, r.Rounds, r.StartedAt.Local().Format(time.DateTime))
		}
		if shown := historyOffset + len(runs); shown < total {
			fmt.Printf("... %d more (use --offset %d)\n", total-shown, shown)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the messages and command executions of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer stores.Close()

		run, err := stores.Chats.GetRun(args[0])
		if err != nil {
			return fmt.Errorf("run '%s': %w", args[0], err)
		}
		fmt.Printf("Run %s: %s (%s", run.ID, run.ChatName, run.Status)
		if run.State != "" {
			fmt.Printf(", %s", run.State)
		}
		fmt.Printf(", %d rounds)\n", run.Rounds)
		fmt.Printf("Participants: %s\n", strings.Join(run.Participants, ", "))
		if run.Error != nil {
			fmt.Printf("Error: %s\n", *run.Error)
		}

		msgs, err := stores.Chats.GetMessages(run.ID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Printf("\n[%d] %s (%s, round %d)\n%s\n", m.Seq, m.Name, m.Role, m.Round, m.Content)
		}

		return printExecutions(stores, run.ID)
	},
}

var historyExecsCmd = &cobra.Command{
	Use:   "execs",
	Short: "Show command executions that ran outside a chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := openStores(cmd.Context())
		if err != nil {
			return err
		}
		defer stores.Close()
		return printExecutions(stores, "")
	},
}

func printExecutions(stores *store.Bundle, runID string) error {
	execs, err := stores.Executions.ListExecutions(runID)
	if err != nil {
		return err
	}
	for _, e := range execs {
		fmt.Printf("\nExecution %s (%s mode, %s)\n", e.ID, e.Mode, e.Status)

		cmds, err := stores.Executions.GetCommands(e.ID)
		if err != nil {
			return err
		}
		for _, c := range cmds {
			fmt.Printf("  [%s] %s: %s\n", c.Status, c.Group, c.Command)
			if c.Error != "" {
				fmt.Printf("    %s\n", c.Error)
			}
		}
	}
	return nil
}

func openStores(ctx context.Context) (*store.Bundle, error) {
	cfg, err := loadConfig(historyConfigPath)
	if err != nil {
		return nil, err
	}
	return store.NewBundle(ctx, cfg.Storage.Options())
}

func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExecsCmd)
	historyCmd.PersistentFlags().StringVarP(&historyConfigPath, "config", "c", ".", "Path to config file or directory")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Number of runs to skip")
}
