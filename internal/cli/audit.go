package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"chatrelay/internal/gateway/websocket"
	"chatrelay/internal/storage"
	"chatrelay/pkg/logger"
)

// NewAuditCmd creates the audit command group.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the exchange audit log",
		Long: `Inspect the exchange audit log written by "chatrelay serve" when
audit.enabled is true (or --audit is passed).`,
	}

	cmd.AddCommand(newAuditTailCmd())
	cmd.AddCommand(newAuditStatsCmd())
	cmd.AddCommand(newAuditPruneCmd())

	return cmd
}

type auditTailOptions struct {
	limit      int
	sender     string
	outcome    string
	since      time.Duration
	jsonOutput bool
	showFull   bool
}

func newAuditTailCmd() *cobra.Command {
	opts := &auditTailOptions{}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent exchanges",
		Example: `  # Last 20 exchanges
  chatrelay audit tail

  # Failed generations of the last hour
  chatrelay audit tail --outcome timed_out --since 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetAuditDB()
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}

			list := storage.ListOptions{
				Sender:  opts.sender,
				Outcome: opts.outcome,
				Limit:   opts.limit,
			}
			if opts.since > 0 {
				list.Since = time.Now().Add(-opts.since)
			}

			exs, err := db.ListExchanges(cmd.Context(), list)
			if err != nil {
				return err
			}

			// oldest first, like tail
			for i, j := 0, len(exs)-1; i < j; i, j = i+1, j-1 {
				exs[i], exs[j] = exs[j], exs[i]
			}

			if opts.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, ex := range exs {
					if err := enc.Encode(ex); err != nil {
						return err
					}
				}
				return nil
			}
			printExchanges(cmd.OutOrStdout(), exs, opts.showFull)
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "lines", "n", 20, "number of exchanges to show")
	cmd.Flags().StringVar(&opts.sender, "sender", "", "only this sender key")
	cmd.Flags().StringVar(&opts.outcome, "outcome", "", "only this outcome (completed, timed_out, backend_error, ...)")
	cmd.Flags().DurationVar(&opts.since, "since", 0, "only exchanges newer than this")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "one JSON object per line")
	cmd.Flags().BoolVar(&opts.showFull, "full", false, "show full sender keys and texts")

	return cmd
}

func printExchanges(out io.Writer, exs []*storage.Exchange, full bool) {
	if len(exs) == 0 {
		fmt.Fprintln(out, "No exchanges recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSENDER\tOUTCOME\tLATENCY\tINPUT\tREPLY")
	for _, ex := range exs {
		sender, input, reply := ex.Sender, ex.Input, ex.Reply
		if !full {
			sender = websocket.MaskSender(sender)
			input = oneLine(logger.Preview(input))
			reply = oneLine(logger.Preview(reply))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ex.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			sender,
			ex.Outcome,
			ex.Latency.Round(time.Millisecond),
			input,
			reply,
		)
	}
	w.Flush()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newAuditStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count exchanges by outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetAuditDB()
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}

			counts, err := db.OutcomeCounts(cmd.Context())
			if err != nil {
				return err
			}
			printOutcomeCounts(cmd.OutOrStdout(), counts)
			return nil
		},
	}
}

func printOutcomeCounts(out io.Writer, counts map[string]int) {
	outcomes := make([]string, 0, len(counts))
	total := 0
	for o, n := range counts {
		outcomes = append(outcomes, o)
		total += n
	}
	sort.Strings(outcomes)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%d\n", o, counts[o])
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	w.Flush()
}

func newAuditPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old exchanges",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetAuditDB()
			if err != nil {
				return fmt.Errorf("open audit log: %w", err)
			}

			n, err := db.PruneExchanges(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d exchanges older than %s\n", n, olderThan)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the exchanges to delete")

	return cmd
}
