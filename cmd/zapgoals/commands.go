package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Priya8975/zap-goal-tracker/internal/domain"
	"github.com/Priya8975/zap-goal-tracker/internal/engine"
	"github.com/Priya8975/zap-goal-tracker/internal/relay"
	"github.com/Priya8975/zap-goal-tracker/internal/service"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/spf13/cobra"
)

type options struct {
	relays  []string
	timeout time.Duration
	json    bool
	verbose bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "zapgoals",
		Short:         "Browse Nostr zap goals and their funding progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringSliceVarP(&opts.relays, "relay", "r", engine.DefaultGoalRelays, "relay URLs to query")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Second, "per query timeout")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of a table")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log relay activity to stderr")

	root.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newAuthorCmd(opts),
		newTemplateCmd(opts),
		newSatsCmd(),
	)
	return root
}

func (o *options) service(cmd *cobra.Command) *service.Service {
	level := slog.LevelError
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	client := relay.NewClient(o.relays, nil, nil, logger)
	return service.New(client, nil, nil, logger, service.Options{QueryTimeout: o.timeout})
}

func newListCmd(opts *options) *cobra.Command {
	var (
		sortFlag string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent goals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkLimit(limit); err != nil {
				return err
			}
			order, ok := service.ParseSortOrder(sortFlag)
			if !ok {
				return fmt.Errorf("--sort must be newest or trending, got %q", sortFlag)
			}

			goals, err := opts.service(cmd).ListGoals(cmd.Context(), order, limit)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), goals)
			}
			return writeGoalTable(cmd.OutOrStdout(), goals)
		},
	}
	cmd.Flags().StringVar(&sortFlag, "sort", "newest", "newest or trending")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of goals")
	return cmd
}

func newShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|note|nevent>",
		Short: "Show one goal with its zap receipts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := decodeEventID(args[0])
			if err != nil {
				return err
			}

			detail, err := opts.service(cmd).GetGoal(cmd.Context(), id)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), detail)
			}
			return writeGoalDetail(cmd.OutOrStdout(), detail)
		},
	}
}

func newAuthorCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "author <pubkey|npub>",
		Short: "List the goals of one author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkLimit(limit); err != nil {
				return err
			}
			pubkey, err := decodePubkey(args[0])
			if err != nil {
				return err
			}

			goals, err := opts.service(cmd).AuthorGoals(cmd.Context(), pubkey, limit)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd.OutOrStdout(), goals)
			}
			return writeGoalTable(cmd.OutOrStdout(), goals)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of goals")
	return cmd
}

func newTemplateCmd(opts *options) *cobra.Command {
	var (
		in       engine.GoalInput
		closedAt string
	)

	cmd := &cobra.Command{
		Use:   "template <description>",
		Short: "Print an unsigned goal event ready for signing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Content = args[0]
			if closedAt != "" {
				t, err := time.Parse(time.RFC3339, closedAt)
				if err != nil {
					return fmt.Errorf("--closed-at: %w", err)
				}
				in.ClosedAt = t.Unix()
			}
			if cmd.Flags().Changed("relay") {
				in.Relays = opts.relays
			}

			ev, err := engine.BuildGoalEvent(in, time.Now())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ev)
		},
	}
	cmd.Flags().Int64Var(&in.AmountSats, "amount", 0, "target in sats")
	cmd.Flags().StringVar(&in.Summary, "summary", "", "short summary")
	cmd.Flags().StringVar(&in.Image, "image", "", "image URL")
	cmd.Flags().StringVar(&closedAt, "closed-at", "", "deadline, RFC 3339")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func newSatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sats <millisats>",
		Short: "Format a millisat amount",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msats, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("millisats must be an integer: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), engine.FormatSats(msats))
			return nil
		},
	}
}

func checkLimit(n int) error {
	if n < 1 {
		return fmt.Errorf("--limit must be at least 1, got %d", n)
	}
	return nil
}

func decodeEventID(s string) (string, error) {
	if !strings.HasPrefix(s, "note1") && !strings.HasPrefix(s, "nevent1") {
		return s, nil
	}

	prefix, value, err := nip19.Decode(s)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", s, err)
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case nostr.EventPointer:
		return v.ID, nil
	default:
		return "", fmt.Errorf("unsupported %s reference", prefix)
	}
}

func decodePubkey(s string) (string, error) {
	if !strings.HasPrefix(s, "npub1") {
		return s, nil
	}

	_, value, err := nip19.Decode(s)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", s, err)
	}
	pk, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected npub payload")
	}
	return pk, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeGoalTable(w io.Writer, goals []domain.GoalWithProgress) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUMMARY\tRAISED\tTARGET\tPROGRESS\tZAPS\tSTATUS")
	for _, g := range goals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f%%\t%d\t%s\n",
			shortID(g.Goal.ID),
			title(g.Goal),
			engine.FormatSats(g.Progress.Raised),
			engine.FormatSats(g.Progress.Target),
			g.Progress.Percentage,
			g.Progress.ZapCount,
			g.Status,
		)
	}
	return tw.Flush()
}

func writeGoalDetail(w io.Writer, d *domain.GoalDetail) error {
	fmt.Fprintf(w, "%s\n%s\n\n", title(d.Goal), d.Goal.Content)
	fmt.Fprintf(w, "raised   %s of %s (%.2f%%)\n", engine.FormatSats(d.Progress.Raised), engine.FormatSats(d.Progress.Target), d.Progress.Percentage)
	fmt.Fprintf(w, "zaps     %d\n", d.Progress.ZapCount)
	fmt.Fprintf(w, "status   %s\n", d.Status)
	if d.Goal.ClosedAt != nil {
		fmt.Fprintf(w, "closes   %s\n", time.Unix(*d.Goal.ClosedAt, 0).UTC().Format(time.RFC3339))
	}

	if len(d.Receipts) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tAMOUNT\tSENDER")
	for _, r := range d.Receipts {
		sender := "anonymous"
		if r.Sender != nil {
			sender = shortID(*r.Sender)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			time.Unix(r.Timestamp, 0).UTC().Format(time.RFC3339),
			engine.FormatSats(r.Amount),
			sender,
		)
	}
	return tw.Flush()
}

func title(g domain.Goal) string {
	if g.Summary != nil && *g.Summary != "" {
		return *g.Summary
	}
	if len(g.Content) > 40 {
		return g.Content[:40] + "..."
	}
	return g.Content
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
