package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/commontrace/tracehook/internal/kb"
	"github.com/commontrace/tracehook/internal/logger"
)

var (
	traceTags     string
	traceFeedback string
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Work with the CommonTrace knowledge base from the terminal",
}

var traceSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for traces",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newKBClient()
		if err != nil {
			return err
		}

		var tags []string
		if traceTags != "" {
			for _, tag := range strings.Split(traceTags, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					tags = append(tags, tag)
				}
			}
		}

		traces, err := client.Search(context.Background(), strings.Join(args, " "), tags, nil)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(traces) == 0 {
			fmt.Println("No traces found.")
			return nil
		}
		fmt.Println(kb.FormatTraces(traces))
		return nil
	},
}

var traceGetCmd = &cobra.Command{
	Use:   "get <trace-id>",
	Short: "Fetch a trace by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newKBClient()
		if err != nil {
			return err
		}

		trace, err := client.Get(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("get failed: %w", err)
		}

		fmt.Printf("%s\n\n", trace.Title)
		if trace.ContextText != "" {
			fmt.Printf("Context:\n%s\n\n", trace.ContextText)
		}
		fmt.Printf("Solution:\n%s\n", trace.SolutionText)
		if len(trace.Tags) > 0 {
			fmt.Printf("\nTags: %s\n", strings.Join(trace.Tags, ", "))
		}
		return nil
	},
}

var traceVoteCmd = &cobra.Command{
	Use:   "vote <trace-id> <up|down>",
	Short: "Vote on a trace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newKBClient()
		if err != nil {
			return err
		}
		if err := client.Vote(context.Background(), args[0], args[1], traceFeedback); err != nil {
			return fmt.Errorf("vote failed: %w", err)
		}
		fmt.Printf("Voted %s on %s\n", args[1], args[0])
		return nil
	},
}

var traceTagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List knowledge-base tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newKBClient()
		if err != nil {
			return err
		}
		tags, err := client.ListTags(context.Background())
		if err != nil {
			return fmt.Errorf("list tags failed: %w", err)
		}
		for _, tag := range tags {
			fmt.Println(tag)
		}
		return nil
	},
}

var traceAmendCmd = &cobra.Command{
	Use:   "amend <trace-id> <solution>",
	Short: "Replace a trace's solution text",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newKBClient()
		if err != nil {
			return err
		}
		if err := client.Amend(context.Background(), args[0], args[1]); err != nil {
			return fmt.Errorf("amend failed: %w", err)
		}
		fmt.Printf("Amended %s\n", args[0])
		return nil
	},
}

func init() {
	traceSearchCmd.Flags().StringVarP(&traceTags, "tags", "t", "", "Comma-separated tag filter")
	traceVoteCmd.Flags().StringVarP(&traceFeedback, "feedback", "f", "", "Optional feedback note")

	traceCmd.AddCommand(traceSearchCmd, traceGetCmd, traceVoteCmd, traceTagsCmd, traceAmendCmd)
	rootCmd.AddCommand(traceCmd)
}

func newKBClient() (*kb.Client, error) {
	cfg := loadConfig()
	logger.InitQuiet()

	client := kb.New(&cfg.API)
	if !client.Available() {
		return nil, fmt.Errorf("no API key configured: set COMMONTRACE_API_KEY or api.api_key in config")
	}
	return client, nil
}
