package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hvostenko/yaclimate/internal/config"
	"github.com/hvostenko/yaclimate/yandex"
)

var checkTokenCmd = &cobra.Command{
	Use:   "check-token",
	Short: "Verify that the configured token can read the device list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return checkToken(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(checkTokenCmd)
}

func checkToken(ctx context.Context, cfg *config.Config) error {
	client, err := buildAPIClient(ctx, cfg)
	if err != nil {
		return err
	}

	info, err := client.UserInfo(ctx)
	if err != nil {
		var statusErr yandex.StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.Status {
			case 401:
				return fmt.Errorf("token rejected (401): obtain a fresh OAuth token")
			case 403:
				return fmt.Errorf("token lacks the iot:view scope (403)")
			}
		}
		return err
	}

	climate := 0
	for _, device := range info.Devices {
		if yandex.IsClimateModule(device) {
			climate++
		}
	}
	fmt.Printf("Token OK: %d devices visible, %d climate modules.\n", len(info.Devices), climate)
	return nil
}
