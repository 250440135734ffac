package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/toolsmith/internal/composer"
	"github.com/crystaldolphin/toolsmith/internal/dependency"
	"github.com/crystaldolphin/toolsmith/internal/orchestrator"
)

var (
	chatMessage      string
	chatConversation string
	chatLogs         bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "cli:direct", "Conversation ID")
	chatCmd.Flags().BoolVar(&chatLogs, "logs", false, "Show runtime logs")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Log.Format = "console"
	if !chatLogs {
		cfg.Log.Level = "error"
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	orch, err := container.Orchestrator()
	if err != nil {
		return err
	}
	logger, err := container.Logger()
	if err != nil {
		return err
	}
	c := composer.New(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if chatMessage != "" {
		return runTurn(ctx, orch, c, chatConversation, chatMessage)
	}
	return runInteractive(ctx, orch, c)
}

// runTurn streams one turn to the terminal.
func runTurn(ctx context.Context, orch *orchestrator.Orchestrator, c *composer.Composer, conversationID, message string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Printf("\n%s\n", accentStyle.Render(logo+" toolsmith"))
	sink := composer.NewTerminalSink(os.Stdout)
	err := c.Stream(turnCtx, orch.Turn(turnCtx, conversationID, message), sink, cancel)
	fmt.Println()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runInteractive reads lines from stdin and runs one turn per line until
// EOF, an exit command or a signal.
func runInteractive(ctx context.Context, orch *orchestrator.Orchestrator, c *composer.Composer) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n", logo)
	fmt.Println(dimStyle.Render("Conversation: " + chatConversation))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Print("\nYou: ")
		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		case <-ctx.Done():
			fmt.Println("\nGoodbye!")
			return nil
		}

		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}
		if err := runTurn(ctx, orch, c, chatConversation, line); err != nil {
			fmt.Fprintln(os.Stderr, errStyle.Render("turn failed: "+err.Error()))
		}
	}
}
