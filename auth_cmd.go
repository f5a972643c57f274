package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive-migrate/internal/auth"
	"github.com/tonimelisma/drive-migrate/internal/config"
	"github.com/tonimelisma/drive-migrate/internal/tokenfile"
)

var providerArgs = []string{auth.ProviderDropbox, auth.ProviderGoogle}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <dropbox|google>",
		Short: "Authorize access to a Dropbox or Google account",
		Long: `Runs the OAuth flow for one provider and saves the credentials under the
data directory.

Google opens a browser and receives the code on a localhost redirect.
Dropbox prints a URL; approve access there and paste the code back.`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: providerArgs,
		RunE:      runLogin,
	}

	cmd.Flags().Bool("no-browser", false, "print the authorization URL instead of opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "logout <dropbox|google>",
		Short:     "Remove saved credentials for a provider",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: providerArgs,
		RunE:      runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the authenticated Dropbox and Google accounts",
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	name := args[0]

	p, err := providerFor(name, config.ReadCredentials())
	if err != nil {
		return err
	}

	path := config.CredentialPath(cc.Cfg.DataDir, name)

	noBrowser, _ := cmd.Flags().GetBool("no-browser")

	// Authorization prompts are always shown, even with --quiet.
	switch {
	case name == auth.ProviderDropbox:
		_, err = auth.LoginWithCode(ctx, p, path, os.Stdin, os.Stderr, cc.Logger)
	case noBrowser:
		_, err = auth.LoginWithBrowser(ctx, p, path, func(string) error {
			return fmt.Errorf("browser disabled by --no-browser")
		}, os.Stderr, cc.Logger)
	default:
		_, err = auth.LoginWithBrowser(ctx, p, path, openBrowser, os.Stderr, cc.Logger)
	}

	if err != nil {
		return err
	}

	acct, err := fetchAccount(ctx, cc, name)
	if err != nil {
		// The token is saved; identity is informational.
		cc.Logger.Warn("could not fetch account identity", slog.String("provider", name), slog.String("error", err.Error()))
		cc.Statusf("Logged in to %s.\n", name)

		return nil
	}

	if err := auth.SaveAccount(path, acct); err != nil {
		return err
	}

	cc.Statusf("Logged in to %s as %s.\n", name, acct.Email)

	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	name := args[0]

	if err := auth.Logout(config.CredentialPath(cc.Cfg.DataDir, name), cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out of %s.\n", name)

	return nil
}

// whoamiAccount is one entry of `whoami --json`.
type whoamiAccount struct {
	Provider    string `json:"provider"`
	ID          string `json:"id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Error       string `json:"error,omitempty"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	out := make([]whoamiAccount, 0, len(providerArgs))
	failed := 0

	for _, name := range providerArgs {
		entry := whoamiAccount{Provider: name}

		acct, err := fetchAccount(ctx, cc, name)
		if err != nil {
			entry.Error = err.Error()
			failed++
		} else {
			entry.ID = acct.ID
			entry.Email = acct.Email
			entry.DisplayName = acct.DisplayName

			if err := auth.SaveAccount(config.CredentialPath(cc.Cfg.DataDir, name), acct); err != nil {
				cc.Logger.Warn("saving account identity", slog.String("provider", name), slog.String("error", err.Error()))
			}
		}

		out = append(out, entry)
	}

	if cc.Flags.JSON {
		if err := writeJSON(os.Stdout, out); err != nil {
			return err
		}
	} else {
		rows := make([][]string, 0, len(out))
		for _, a := range out {
			detail := a.Email
			if a.Error != "" {
				detail = "error: " + a.Error
			}

			rows = append(rows, []string{a.Provider, a.DisplayName, detail})
		}

		printTable(os.Stdout, []string{"PROVIDER", "NAME", "ACCOUNT"}, rows)
	}

	if failed > 0 {
		return &exitError{code: 1, err: fmt.Errorf("%d account(s) unavailable", failed)}
	}

	return nil
}

// fetchAccount asks the provider who the saved credentials belong to.
func fetchAccount(ctx context.Context, cc *CLIContext, name string) (*tokenfile.Account, error) {
	hc := newHTTPClient(cc.Cfg)

	switch name {
	case auth.ProviderDropbox:
		c, err := newDropboxClient(ctx, cc, hc)
		if err != nil {
			return nil, err
		}

		a, err := c.CurrentAccount(ctx)
		if err != nil {
			return nil, err
		}

		return &tokenfile.Account{ID: a.AccountID, Email: a.Email, DisplayName: a.DisplayName}, nil
	default:
		c, err := newDriveClient(ctx, cc, hc)
		if err != nil {
			return nil, err
		}

		a, err := c.About(ctx)
		if err != nil {
			return nil, err
		}

		return &tokenfile.Account{Email: a.EmailAddress, DisplayName: a.DisplayName}, nil
	}
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	go cmd.Wait() //nolint:errcheck // reap the child

	return nil
}
