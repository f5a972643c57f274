package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
)

// LoginWithCode runs the authorization code + PKCE flow without a redirect
// URI: the user opens the printed URL, approves access, and pastes the code
// shown by the provider back into the terminal.
func LoginWithCode(
	ctx context.Context,
	p *Provider,
	path string,
	in io.Reader,
	prompt io.Writer,
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("starting code-paste auth flow", slog.String("provider", p.Name))

	verifier := oauth2.GenerateVerifier()
	opts := append([]oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}, p.authParams...)

	// No state: without a redirect there is no callback to forge.
	authURL := p.Config.AuthCodeURL("", opts...)

	fmt.Fprintf(prompt, "1. Open this URL in your browser:\n%s\n2. Approve access.\n3. Paste the authorization code here: ", authURL)

	code, err := readCode(ctx, in)
	if err != nil {
		return nil, err
	}

	tok, err := p.Config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("auth: token exchange failed: %w", err)
	}

	return saveNewToken(ctx, p, path, tok, logger)
}

func readCode(ctx context.Context, in io.Reader) (string, error) {
	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			errCh <- err
			return
		}

		lineCh <- line
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("auth: login canceled: %w", ctx.Err())
	case err := <-errCh:
		return "", fmt.Errorf("auth: reading authorization code: %w", err)
	case line := <-lineCh:
		code := strings.TrimSpace(line)
		if code == "" {
			return "", errors.New("auth: empty authorization code")
		}

		return code, nil
	}
}
