package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"devcrew/agent"
	"devcrew/chat"
)

var (
	chatConfigPath string
	chatMessage    string
	chatMode       string
	chatDebug      bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <groupchat>",
	Short: "Run a configured group chat",
	Long: `Build the agents of a groupchat block and run the chat until it
terminates or reaches its round limit. The first human_proxy participant
sends the opening message; without one the first agent does.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		cfg, err := loadConfig(chatConfigPath)
		if err != nil {
			return err
		}
		if _, err := cfg.GetGroupChat(name); err != nil {
			return err
		}

		ctx, stepper, stop := interruptible(context.Background())
		defer stop()

		var debugName string
		if chatDebug {
			debugName = name
		}
		rt, err := newRuntime(ctx, runtimeOptions{
			Config:      cfg,
			Mode:        chatMode,
			ProjectName: name,
			DebugName:   debugName,
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		runner, crew, err := agent.BuildGroupChat(ctx, name, rt.buildOptions())
		if err != nil {
			return err
		}
		defer crew.Close()

		message := chatMessage
		if message == "" {
			if message, err = rt.input.Ask("Opening message:"); err != nil {
				return err
			}
		}

		sender := openingSender(runner.Agents())
		res, err := runner.Run(ctx, sender, chat.Message{
			Role:    chat.RoleUser,
			Name:    sender.Name(),
			Content: message,
		}, chat.RunOptions{Cache: rt.cache, Stepper: stepper})
		if err != nil {
			return err
		}
		fmt.Printf("\nChat %s after %d rounds (%d messages)\n", res.State, res.Rounds, len(res.Messages))
		return nil
	},
}

// openingSender is the first human proxy, else the first agent
func openingSender(agents []chat.Agent) chat.Agent {
	for _, a := range agents {
		if a.Kind() == chat.KindHumanProxy {
			return a
		}
	}
	return agents[0]
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatConfigPath, "config", "c", ".", "Path to config file or directory")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Opening message (asked for when empty)")
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "Execution mode: all, step or script (overrides config)")
	chatCmd.Flags().BoolVar(&chatDebug, "debug", false, "Write events and transcripts to debug/<groupchat>_<timestamp>")
}
