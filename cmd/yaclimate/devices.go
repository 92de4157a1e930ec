package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hvostenko/yaclimate/internal/config"
	"github.com/hvostenko/yaclimate/yandex"
)

var listAll bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List climate modules visible to the configured token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return listDevices(cmd.Context(), cfg)
	},
}

func init() {
	devicesCmd.Flags().BoolVar(&listAll, "all", false, "Include non-climate devices")
	rootCmd.AddCommand(devicesCmd)
}

func listDevices(ctx context.Context, cfg *config.Config) error {
	client, err := buildAPIClient(ctx, cfg)
	if err != nil {
		return err
	}

	info, err := client.UserInfo(ctx)
	if err != nil {
		return err
	}
	rooms := info.RoomNames()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROOM\tTEMP\tHUM\tCO2")

	count := 0
	printDevice := func(device yandex.Device) {
		if !yandex.IsClimateModule(device) && !listAll {
			return
		}
		count++

		reading := yandex.NewReading(device, rooms[device.Room])
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			device.ID,
			reading.Name,
			reading.Room,
			formatValue(reading.Temperature, "%.1f"),
			formatValue(reading.Humidity, "%.1f"),
			formatValue(reading.CO2, "%.0f"))
	}

	flat := make(map[string]bool, len(info.Devices))
	for _, device := range info.Devices {
		flat[device.ID] = true
		printDevice(device)
	}

	// Rooms can reference devices the flat list omits; their state carries
	// the properties needed to classify them.
	for _, id := range info.DeviceIDs() {
		if flat[id] {
			continue
		}
		device, err := client.Device(ctx, id)
		if err != nil {
			logger.Warn("device fetch failed", "device_id", id, "error", err)
			continue
		}
		printDevice(device)
	}

	if err := w.Flush(); err != nil {
		return err
	}

	if count == 0 {
		fmt.Println("No climate modules found. Use --all to list every device.")
	}
	return nil
}

func formatValue(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
