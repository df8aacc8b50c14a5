package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh"
)

func chatCmd() *cobra.Command {
	var (
		agentName string
		message   string
		budget    float64
		maxSteps  int
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent interactively or send a one-shot message",
		Long: `Chat with a configured agent in-process.

Examples:
  taskmesh chat                         # interactive session with the first agent
  taskmesh chat --name researcher       # pick an agent
  taskmesh chat -m "What time is it?"   # one-shot message
  taskmesh chat -m "..." --budget 0.05  # cap the request's spend`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			mesh, _, err := buildMesh(cfg)
			if err != nil {
				return err
			}

			if agentName == "" {
				agentName = mesh.Supervisor().Agents()[0].Name()
			}

			runOpts := func(o *taskmesh.RunOptions) {
				o.UserID = "cli"
				o.Budget = budget
				o.MaxSteps = maxSteps
				o.Timeout = timeout
			}

			if message != "" {
				answer, _, err := mesh.Chat(cmd.Context(), agentName, message, runOpts)
				if err != nil {
					return err
				}
				fmt.Println(answer)
				return nil
			}

			return runInteractive(mesh, agentName, runOpts)
		},
	}

	cmd.Flags().StringVarP(&agentName, "name", "n", "", "agent to talk to (default: first configured)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().Float64Var(&budget, "budget", 0, "cost ceiling per request (0 = unlimited)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "tool-round ceiling per request (0 = unlimited)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wall-clock ceiling per request (0 = unlimited)")

	return cmd
}

func runInteractive(mesh *taskmesh.TaskMesh, agentName string, runOpts func(o *taskmesh.RunOptions)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(os.Stderr, "\nTaskMesh interactive chat (agent: %s)\n", agentName)
	fmt.Fprintf(os.Stderr, "Type \"exit\" to quit\n\n")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nGoodbye!")
			return nil
		default:
		}

		fmt.Fprint(os.Stderr, "You: ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(os.Stderr, "Goodbye!")
			return nil
		}

		answer, runCtx, err := mesh.Chat(ctx, agentName, input, runOpts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			continue
		}

		fmt.Printf("\n%s\n\n", answer)
		fmt.Fprintf(os.Stderr, "(tokens: %d, cost: $%.4f, steps: %d)\n\n",
			runCtx.TokensUsed, runCtx.CostIncurred, runCtx.StepsTaken)
	}
}
