package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/hvostenko/yaclimate/internal/config"
	"github.com/hvostenko/yaclimate/internal/oauth"
	"github.com/hvostenko/yaclimate/internal/oauthflow"
)

var (
	authRedirectURL string
	authNoOpen      bool
	authTimeout     time.Duration
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Run the interactive OAuth flow and persist the refresh state",
	Long: `auth walks the authorization-code flow against the Yandex OAuth app named
in the bootstrap file, listens for the callback on the redirect URL, and
writes the resulting refresh state to the configured state path (and the
blob mirror when one is configured).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runAuth(cmd.Context(), cfg)
	},
}

func init() {
	authCmd.Flags().StringVar(&authRedirectURL, "redirect-url", "http://127.0.0.1:8400/callback", "OAuth redirect URL registered with the app")
	authCmd.Flags().BoolVar(&authNoOpen, "no-open", false, "Do not open the browser automatically")
	authCmd.Flags().DurationVar(&authTimeout, "timeout", 5*time.Minute, "Timeout for the auth flow")
	rootCmd.AddCommand(authCmd)
}

func runAuth(parent context.Context, cfg *config.Config) error {
	if cfg.Yandex.BootstrapFile == "" {
		return fmt.Errorf("yandex.bootstrap_file is required for the auth flow")
	}
	bootstrap, err := oauth.LoadBootstrap(cfg.Yandex.BootstrapFile)
	if err != nil {
		return err
	}

	decl := oauth.Yandex(cfg.Yandex.StatePath)
	conf := &oauth2.Config{
		ClientID:     bootstrap.ClientID,
		ClientSecret: bootstrap.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  decl.AuthorizeURL,
			TokenURL: decl.TokenURL,
		},
		RedirectURL: authRedirectURL,
		Scopes:      strings.Fields(decl.Scope),
	}

	ctx, cancel := context.WithTimeout(parent, authTimeout)
	defer cancel()

	token, err := oauthflow.Run(ctx, conf, oauthflow.Options{
		NoOpen: authNoOpen,
		In:     os.Stdin,
		Out:    os.Stdout,
	})
	if err != nil {
		return err
	}

	state := oauth.State{
		SchemaVersion: oauth.SchemaVersion,
		ClientID:      bootstrap.ClientID,
		ClientSecret:  bootstrap.ClientSecret,
		RefreshToken:  token.RefreshToken,
		Scope:         decl.Scope,
	}
	if err := oauth.WriteState(decl.StatePath, state); err != nil {
		return err
	}
	fmt.Printf("Refresh state written to %s\n", decl.StatePath)

	blobStore, err := buildBlobStore(cfg)
	if err != nil {
		return err
	}
	if blobStore != nil {
		data, err := oauth.EncodeState(state)
		if err != nil {
			return err
		}
		if err := blobStore.Save(ctx, decl.Provider, data); err != nil {
			return fmt.Errorf("blob mirror: %w", err)
		}
		fmt.Println("Refresh state mirrored to blob storage.")
	}

	return nil
}
