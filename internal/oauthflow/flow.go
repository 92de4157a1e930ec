// Package oauthflow runs the interactive authorization-code flow used to
// obtain the first refresh token for the Yandex OAuth app.
package oauthflow

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/oauth2"
)

type Options struct {
	// NoOpen suppresses the automatic browser launch.
	NoOpen bool
	// In and Out carry the manual code-paste fallback. Defaults are wired
	// by the caller; both must be non-nil.
	In  io.Reader
	Out io.Writer
}

// Run walks the auth-code flow: prints the authorize URL, waits for the
// callback on the loopback redirect (or a pasted code), and exchanges it.
func Run(ctx context.Context, conf *oauth2.Config, opts Options) (*oauth2.Token, error) {
	state, err := randomState(16)
	if err != nil {
		return nil, err
	}

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(opts.Out, "Open this URL to authorize:\n\n  %s\n\n", authURL)

	if !opts.NoOpen {
		_ = openBrowser(authURL)
	}

	code, err := waitForAuthCode(ctx, conf.RedirectURL, state, opts)
	if err != nil {
		return nil, err
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh_token returned; check the app's scope and redirect URL")
	}
	return token, nil
}

func waitForAuthCode(ctx context.Context, redirectURL, state string, opts Options) (string, error) {
	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}

	if isLoopback(parsed.Hostname()) && parsed.Scheme == "http" && parsed.Host != "" {
		code, err := listenForAuthCode(ctx, parsed, state)
		if err == nil {
			return code, nil
		}
		fmt.Fprintf(opts.Out, "Warning: callback listener failed, falling back to manual paste: %v\n", err)
	}

	fmt.Fprint(opts.Out, "Paste the authorization code (or full redirect URL): ")
	return readCode(opts.In)
}

func listenForAuthCode(ctx context.Context, redirect *url.URL, state string) (string, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Addr: redirect.Host,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if redirect.Path != "" && r.URL.Path != redirect.Path {
				http.NotFound(w, r)
				return
			}
			query := r.URL.Query()
			if errStr := query.Get("error"); errStr != "" {
				errCh <- fmt.Errorf("authorization error: %s", errStr)
				_, _ = w.Write([]byte("Authorization failed. You can close this window."))
				return
			}
			if got := query.Get("state"); got != "" && got != state {
				errCh <- fmt.Errorf("state mismatch")
				_, _ = w.Write([]byte("State mismatch. You can close this window."))
				return
			}
			code := query.Get("code")
			if code == "" {
				errCh <- fmt.Errorf("missing code in callback")
				_, _ = w.Write([]byte("Missing authorization code. You can close this window."))
				return
			}
			codeCh <- code
			_, _ = w.Write([]byte("Authorization received. You can close this window."))
		}),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		_ = srv.Close()
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("authorization timed out")
	case err := <-errCh:
		return "", err
	case code := <-codeCh:
		return code, nil
	}
}

func readCode(in io.Reader) (string, error) {
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no code provided")
	}

	if parsed, err := url.Parse(line); err == nil && parsed.Query().Get("code") != "" {
		return parsed.Query().Get("code"), nil
	}
	return line, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func openBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "linux":
		return exec.Command("xdg-open", target).Start()
	default:
		return nil
	}
}

func randomState(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
