package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crawlingchimp/crawlingchimp/internal/config"
	"github.com/crawlingchimp/crawlingchimp/internal/database"
	"github.com/crawlingchimp/crawlingchimp/internal/report"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Show and compare previous crawls",
		Long: `History works with the crawls recorded in the history database.

Every crawl is stored unless --no-history is given. Without flags the most
recent runs are listed, optionally filtered by host.

Examples:
  # List recent crawls
  crawlingchimp history

  # List crawls of one host
  crawlingchimp history example.com

  # List every crawled host
  crawlingchimp history --list-hosts

  # Print the links of run 3 as Markdown
  crawlingchimp history --show 3 --format markdown

  # Show links added and removed since the previous crawl of the same host
  crawlingchimp history --diff 7

  # Compare run 7 with run 2
  crawlingchimp history --diff 7 --with-run-id 2

  # Delete run 3
  crawlingchimp history --delete 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-hosts", "L", false, "List all crawled hosts")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of runs to list (0 lists all)")
	cmd.Flags().Int64("show", 0, "Print the result of the run with this ID")
	cmd.Flags().Int64("diff", 0, "Compare the run with this ID against an earlier run")
	cmd.Flags().Int64P("with-run-id", "i", 0, "Run to compare --diff against (default: previous run of the same host)")
	cmd.Flags().Int64("delete", 0, "Delete the run with this ID")
	cmd.Flags().String("format", config.FormatText, "Output format for --show and --diff: text, json or markdown")
	cmd.Flags().String("history-dir", config.XDGDataDir(), "Directory of the crawl history database")

	return cmd
}

// historyOptions are the parsed history flags.
type historyOptions struct {
	host      string
	listHosts bool
	limit     int
	show      int64
	diff      int64
	withRunID int64
	delete    int64
	format    string
	dir       string
}

func parseHistoryOptions(cmd *cobra.Command, args []string) (*historyOptions, error) {
	opts := &historyOptions{}
	if len(args) == 1 {
		opts.host = strings.ToLower(args[0])
	}

	flags := cmd.Flags()
	var err error
	if opts.listHosts, err = flags.GetBool("list-hosts"); err != nil {
		return nil, err
	}
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}
	if opts.show, err = flags.GetInt64("show"); err != nil {
		return nil, err
	}
	if opts.diff, err = flags.GetInt64("diff"); err != nil {
		return nil, err
	}
	if opts.withRunID, err = flags.GetInt64("with-run-id"); err != nil {
		return nil, err
	}
	if opts.delete, err = flags.GetInt64("delete"); err != nil {
		return nil, err
	}
	if opts.format, err = flags.GetString("format"); err != nil {
		return nil, err
	}
	if opts.dir, err = flags.GetString("history-dir"); err != nil {
		return nil, err
	}

	actions := 0
	for _, set := range []bool{opts.listHosts, opts.show != 0, opts.diff != 0, opts.delete != 0} {
		if set {
			actions++
		}
	}
	if actions > 1 {
		return nil, errors.New("--list-hosts, --show, --diff and --delete are mutually exclusive")
	}
	if opts.withRunID != 0 && opts.diff == 0 {
		return nil, errors.New("--with-run-id requires --diff")
	}
	if opts.limit < 0 {
		return nil, errors.New("--limit must be non-negative")
	}
	return opts, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryOptions(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(filepath.Join(opts.dir, database.FileName)); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(out, "No crawl history in %s\n", opts.dir)
		return nil
	}

	// The history command never creates the database.
	db, err := database.Open(opts.dir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	switch {
	case opts.listHosts:
		return listHosts(ctx, db, out)
	case opts.show != 0:
		return showRun(ctx, db, out, opts.show, opts.format)
	case opts.diff != 0:
		return diffRuns(ctx, db, out, opts.diff, opts.withRunID, opts.format)
	case opts.delete != 0:
		return deleteRun(ctx, db, out, opts.delete)
	default:
		return listRuns(ctx, db, out, opts.host, opts.limit)
	}
}

// listHosts prints every host with recorded crawls.
func listHosts(ctx context.Context, db *database.CrawlDB, out io.Writer) error {
	hosts, err := db.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list hosts: %w", err)
	}

	if len(hosts) == 0 {
		fmt.Fprintln(out, "No crawls found in the history database.")
		return nil
	}

	fmt.Fprintf(out, "Crawled hosts (%d):\n\n", len(hosts))
	for _, host := range hosts {
		fmt.Fprintf(out, "  - %s\n", host)
	}
	fmt.Fprintln(out, "\nUse 'crawlingchimp history <host>' to see the crawls of a host.")
	return nil
}

// listRuns prints the most recent runs, newest first.
func listRuns(ctx context.Context, db *database.CrawlDB, out io.Writer, host string, limit int) error {
	runs, err := db.ListCrawls(ctx, host, limit)
	if err != nil {
		return fmt.Errorf("failed to list crawls: %w", err)
	}

	if len(runs) == 0 {
		if host != "" {
			fmt.Fprintf(out, "No crawl history found for %s\n", host)
		} else {
			fmt.Fprintln(out, "No crawls found in the history database.")
		}
		return nil
	}

	if host != "" {
		fmt.Fprintf(out, "Crawl history for %s (%d runs):\n\n", host, len(runs))
	} else {
		fmt.Fprintf(out, "Recent crawls (%d runs):\n\n", len(runs))
	}
	fmt.Fprintf(out, "  %-6s  %-19s  %6s  %6s  %6s  %s\n", "ID", "Started", "Pages", "Links", "Failed", "URL")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 72))
	for _, run := range runs {
		marker := ""
		if run.Interrupted {
			marker = " (interrupted)"
		}
		fmt.Fprintf(out, "  %-6d  %-19s  %6d  %6d  %6d  %s%s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.PagesFetched,
			run.UniqueLinks,
			run.Failures,
			run.StartURL,
			marker,
		)
	}
	fmt.Fprintln(out, "\nUse 'crawlingchimp history --show <id>' to print the links of a run.")
	fmt.Fprintln(out, "Use 'crawlingchimp history --diff <id>' to compare a run with the previous one.")
	return nil
}

// showRun prints a stored result with the report writer for format.
func showRun(ctx context.Context, db *database.CrawlDB, out io.Writer, id int64, format string) error {
	result, err := db.GetCrawl(ctx, id)
	if err != nil {
		return err
	}
	w, err := report.NewWriter(format, out, getVersion())
	if err != nil {
		return err
	}
	_, err = w.Write(result)
	return err
}

// diffRuns compares run targetID with baseID, or with the previous run of
// the same host when baseID is zero.
func diffRuns(ctx context.Context, db *database.CrawlDB, out io.Writer, targetID, baseID int64, format string) error {
	target, err := db.GetRun(ctx, targetID)
	if err != nil {
		return err
	}

	if baseID == 0 {
		prev, err := db.PreviousRun(ctx, targetID)
		if err != nil {
			return fmt.Errorf("nothing to compare with: %w", err)
		}
		baseID = prev.ID
	}
	base, err := db.GetRun(ctx, baseID)
	if err != nil {
		return err
	}

	diff, err := db.CompareRuns(ctx, baseID, targetID)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case config.FormatJSON:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(diff)
	case config.FormatText, "":
		return writeDiffText(out, base, target, diff)
	default:
		return fmt.Errorf("%w: %q (--diff supports text and json)", report.ErrUnknownFormat, format)
	}
}

func writeDiffText(out io.Writer, base, target *database.CrawlRunMetadata, diff *database.RunDiff) error {
	const layout = "2006-01-02 15:04:05"

	fmt.Fprintf(out, "Comparing run %d (%s) with run %d (%s)\n",
		target.ID, target.StartedAt.Local().Format(layout),
		base.ID, base.StartedAt.Local().Format(layout))
	if target.Host != base.Host {
		fmt.Fprintf(out, "Note: runs belong to different hosts (%s, %s)\n", target.Host, base.Host)
	}
	fmt.Fprintf(out, "\nAdded: %d  Removed: %d  Unchanged: %d\n", len(diff.Added), len(diff.Removed), diff.Unchanged)

	if len(diff.Added) > 0 {
		fmt.Fprintln(out, "\nAdded links:")
		for _, link := range diff.Added {
			fmt.Fprintf(out, "  + %s\n", link)
		}
	}
	if len(diff.Removed) > 0 {
		fmt.Fprintln(out, "\nRemoved links:")
		for _, link := range diff.Removed {
			fmt.Fprintf(out, "  - %s\n", link)
		}
	}
	if len(diff.Added) == 0 && len(diff.Removed) == 0 {
		fmt.Fprintln(out, "\nNo changes.")
	}
	return nil
}

// deleteRun removes a run and its links.
func deleteRun(ctx context.Context, db *database.CrawlDB, out io.Writer, id int64) error {
	if err := db.DeleteRun(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted run %d\n", id)
	return nil
}
