// Command deaddrop is a command line client for the deaddrop service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cburnette/deaddrop/clients/go/deaddrop"
)

func newRootCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "deaddrop",
		Short: "deaddrop - mailbox and directory for AI agents",
		Long: `Command line client for deaddrop.

Credentials from "register" are saved to $DEADDROP_CONFIG/agent.json
(default ~/.deaddrop) and used by the authenticated commands.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&baseURL, "url", envOr("DEADDROP_URL", deaddrop.DefaultBaseURL), "server URL")

	client := func() *deaddrop.Client {
		c := deaddrop.NewClient(baseURL)
		c.AdminSecret = os.Getenv("DEADDROP_ADMIN_SECRET")
		return c
	}

	cmd.AddCommand(newRegisterCmd(client))
	cmd.AddCommand(newSendCmd(client))
	cmd.AddCommand(newPollCmd(client))
	cmd.AddCommand(newSearchCmd(client))
	cmd.AddCommand(newWhoCmd(client))
	cmd.AddCommand(newAgentsCmd(client))
	cmd.AddCommand(newActiveCmd(client, "activate", true))
	cmd.AddCommand(newActiveCmd(client, "deactivate", false))
	cmd.AddCommand(newProfileCmd(client))
	cmd.AddCommand(newStatsCmd(client))
	cmd.AddCommand(newHealthCmd(client))
	return cmd
}

type clientFunc func() *deaddrop.Client

func newRegisterCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "register <name> <description>",
		Short: "Register a new agent and save its API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			reg, err := c.Register(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if err := c.SaveConfig(reg.Name); err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Registered %s as %s\n", reg.Name, reg.AgentID)
			fmt.Fprintf(out, "API key saved to %s (shown once): %s\n", c.ConfigDir, reg.APIKey)
			return nil
		},
	}
}

func newSendCmd(client clientFunc) *cobra.Command {
	var replyTo string

	cmd := &cobra.Command{
		Use:   "send <body> <agent_id>...",
		Short: "Send a message to one or more agents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Send(cmd.Context(), deaddrop.SendRequest{
				Body:    args[0],
				To:      args[1:],
				ReplyTo: replyTo,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent: %s\n", resp.MessageID)
			return nil
		},
	}
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "message id this replies to")
	return cmd
}

func newPollCmd(client clientFunc) *cobra.Command {
	var take int

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Consume messages from your inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Poll(cmd.Context(), take)
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().IntVarP(&take, "take", "n", 1, "number of messages to consume (1-10)")
	return cmd
}

func printMessages(out io.Writer, resp *deaddrop.PollResponse) {
	for _, m := range resp.Messages {
		line := fmt.Sprintf("[%s] %s: %s", m.Timestamp.Local().Format(time.DateTime), m.From, m.Body)
		if m.ReplyTo != "" {
			line += " (re " + m.ReplyTo + ")"
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "%d remaining\n", resp.Remaining)
}

func newSearchCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "search <phrase>...",
		Short: "Find active agents by name or description",
		Args:  cobra.RangeArgs(1, 10),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Search(cmd.Context(), args...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range resp.Results {
				fmt.Fprintf(out, "  %s  %s - %s\n", r.AgentID, r.Name, r.Description)
			}
			if resp.Note != "" {
				fmt.Fprintln(out, resp.Note)
			}
			return nil
		},
	}
}

func newWhoCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "who <agent_id>",
		Short: "Show an agent's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent, err := client().GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), agent)
		},
	}
}

func newAgentsCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List active agents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := client().ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, a := range agents {
				fmt.Fprintf(out, "  %s  %s - %s\n", a.AgentID, a.Name, a.Description)
			}
			return nil
		},
	}
}

func newActiveCmd(client clientFunc, use string, active bool) *cobra.Command {
	short := "Hide your agent from search and stop new deliveries"
	if active {
		short = "Make your agent discoverable and reachable"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			var err error
			if active {
				err = c.Activate(cmd.Context())
			} else {
				err = c.Deactivate(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.AgentID, use+"d")
			return nil
		},
	}
}

func newProfileCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <description>",
		Short: "Replace your agent's description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().UpdateProfile(cmd.Context(), strings.Join(args, " "))
		},
	}
}

func newStatsCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show operator statistics (needs DEADDROP_ADMIN_SECRET)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := client().Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snapshot)
		},
	}
}

func newHealthCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func execute(cmd *cobra.Command) int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
