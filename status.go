package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive-migrate/internal/auth"
	"github.com/tonimelisma/drive-migrate/internal/checkpoint"
	"github.com/tonimelisma/drive-migrate/internal/config"
	"github.com/tonimelisma/drive-migrate/internal/migrate"
	"github.com/tonimelisma/drive-migrate/internal/tokenfile"
)

// Token state constants for status reporting.
const (
	tokenStateMissing = "missing"
	tokenStateExpired = "expired"
	tokenStateValid   = "valid"
)

// maxFailedShown bounds the failed paths printed in text output.
const maxFailedShown = 20

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login state, the last run, and checkpoint totals",
		Long: `Display which accounts are logged in, the outcome of the most recent
migration run, and how many files the checkpoint records in each state.

Safe to run while a migration is in progress.`,
		RunE: runStatus,
	}
}

// statusAccount is one provider's login state.
type statusAccount struct {
	Provider    string `json:"provider"`
	TokenState  string `json:"token_state"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Accounts     []statusAccount `json:"accounts"`
	Checkpoint   map[string]int  `json:"checkpoint"`
	LastRun      *summaryOutput  `json:"last_run,omitempty"`
	DataDir      string          `json:"data_dir"`
	CheckpointDB string          `json:"checkpoint_db"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	out := statusOutput{
		Checkpoint:   map[string]int{},
		DataDir:      cc.Cfg.DataDir,
		CheckpointDB: config.CheckpointPath(cc.Cfg.DataDir),
	}

	for _, name := range []string{auth.ProviderDropbox, auth.ProviderGoogle} {
		acct, err := accountStatus(name, config.CredentialPath(cc.Cfg.DataDir, name), time.Now())
		if err != nil {
			return err
		}

		out.Accounts = append(out.Accounts, acct)
	}

	store, err := checkpoint.OpenReader(cmd.Context(), out.CheckpointDB, cc.Logger)

	switch {
	case errors.Is(err, checkpoint.ErrNoDatabase):
		// Nothing migrated yet.
	case err != nil:
		return err
	default:
		defer store.Close()

		counts, err := store.StatusCounts(cmd.Context())
		if err != nil {
			return err
		}

		for status, n := range counts {
			out.Checkpoint[string(status)] = n
		}

		last, err := store.LastRun(cmd.Context())
		if err != nil {
			return err
		}

		if last != nil {
			s := newSummaryOutput(last)
			out.LastRun = &s
		}
	}

	if cc.Flags.JSON {
		return writeJSON(os.Stdout, out)
	}

	printStatus(os.Stdout, &out, time.Now())

	return nil
}

// accountStatus reads a credential file without refreshing it.
func accountStatus(provider, path string, now time.Time) (statusAccount, error) {
	acct := statusAccount{Provider: provider, TokenState: tokenStateMissing}

	f, err := tokenfile.Load(path)
	if err != nil {
		return acct, err
	}

	if f == nil || f.Token == nil {
		return acct, nil
	}

	acct.TokenState = tokenStateValid

	// An expired access token with a refresh token is still usable.
	if !f.Token.Expiry.IsZero() && f.Token.Expiry.Before(now) && f.Token.RefreshToken == "" {
		acct.TokenState = tokenStateExpired
	}

	if f.Account != nil {
		acct.Email = f.Account.Email
		acct.DisplayName = f.Account.DisplayName
	}

	return acct, nil
}

func printStatus(w io.Writer, out *statusOutput, now time.Time) {
	rows := make([][]string, 0, len(out.Accounts))
	for _, a := range out.Accounts {
		rows = append(rows, []string{a.Provider, a.TokenState, cmp.Or(a.Email, "-")})
	}

	printTable(w, []string{"ACCOUNT", "TOKEN", "EMAIL"}, rows)
	fmt.Fprintln(w)

	if len(out.Checkpoint) == 0 {
		fmt.Fprintln(w, "Checkpoint: empty")
	} else {
		fmt.Fprintln(w, "Checkpoint:")

		statuses := make([]string, 0, len(out.Checkpoint))
		for s := range out.Checkpoint {
			statuses = append(statuses, s)
		}

		slices.Sort(statuses)

		for _, s := range statuses {
			fmt.Fprintf(w, "  %-12s %d\n", s, out.Checkpoint[s])
		}
	}

	fmt.Fprintln(w)

	if out.LastRun == nil {
		fmt.Fprintln(w, "Last run: never")
		return
	}

	fmt.Fprintf(w, "Last run: %s, %s\n", out.LastRun.State, formatWhen(out.LastRun.FinishedAt, now))
	printCounts(w, out.LastRun)
}

// summaryOutput is the JSON schema for a run summary.
type summaryOutput struct {
	RunID      string         `json:"run_id"`
	State      string         `json:"state"`
	DryRun     bool           `json:"dry_run"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counts     map[string]int `json:"counts"`
	Bytes      int64          `json:"bytes"`
	Failed     []failedOutput `json:"failed,omitempty"`
	Succeeded  bool           `json:"succeeded"`
}

type failedOutput struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func newSummaryOutput(s *migrate.RunSummary) summaryOutput {
	out := summaryOutput{
		RunID:      s.RunID,
		State:      string(s.State),
		DryRun:     s.DryRun,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Counts:     make(map[string]int, len(s.Counts)),
		Bytes:      s.Bytes,
		Succeeded:  s.Succeeded(),
	}

	for status, n := range s.Counts {
		out.Counts[string(status)] = n
	}

	for _, f := range s.Failed {
		out.Failed = append(out.Failed, failedOutput(f))
	}

	return out
}

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, s *migrate.RunSummary) {
	out := newSummaryOutput(s)

	title := "Migration"
	if s.DryRun {
		title = "Dry run"
	}

	fmt.Fprintf(w, "%s %s in %s\n", title, s.State, formatDuration(s.Duration()))
	printCounts(w, &out)
}

func printCounts(w io.Writer, out *summaryOutput) {
	fmt.Fprintf(w, "  succeeded %d, skipped %d, failed %d, pending %d (%s transferred)\n",
		out.Counts[string(migrate.StatusSucceeded)],
		out.Counts[string(migrate.StatusSkipped)],
		out.Counts[string(migrate.StatusFailed)],
		out.Counts[string(migrate.StatusPending)],
		formatSize(out.Bytes),
	)

	if len(out.Failed) == 0 {
		return
	}

	fmt.Fprintln(w, "Failed:")

	for i, f := range out.Failed {
		if i == maxFailedShown {
			fmt.Fprintf(w, "  ... and %d more\n", len(out.Failed)-maxFailedShown)
			break
		}

		fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Reason)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
