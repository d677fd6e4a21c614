// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aibor/dutrun/internal/client"
	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/worker"
)

// deviceAction runs a single device operation.
type deviceAction func(cmd *cobra.Command, dev *client.Device, args []string) error

func newDeviceCommand(flags *clientFlags) *cobra.Command {
	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Control the device of a worker directly",
	}

	// withDevice wraps an action with config loading and client setup.
	withDevice := func(action deviceAction) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}

			err = setupLogging(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}

			cmd.SetContext(logger.WithName(cmd.Context(), "device"))

			return action(cmd, &client.Device{WorkerURL: cfg.WorkerURL}, args)
		}
	}

	deviceCmd.AddCommand(
		newSelectCommand(withDevice),
		newFlashCommand(withDevice),
		&cobra.Command{
			Use:   "on",
			Short: "Power the device on",
			Args:  cobra.NoArgs,
			RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, _ []string) error {
				state, err := dev.PowerOn(cmd.Context())
				return printState(cmd.OutOrStdout(), state, err)
			}),
		},
		&cobra.Command{
			Use:   "off",
			Short: "Power the device off",
			Args:  cobra.NoArgs,
			RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, _ []string) error {
				state, err := dev.PowerOff(cmd.Context())
				return printState(cmd.OutOrStdout(), state, err)
			}),
		},
		newNetworkCommand(withDevice),
		&cobra.Command{
			Use:   "ip TARGET",
			Short: "Resolve the address of the device announced as TARGET",
			Args:  cobra.ExactArgs(1),
			RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, args []string) error {
				ip, err := dev.IP(cmd.Context(), args[0])
				if err != nil {
					return err //nolint:wrapcheck
				}

				fmt.Fprintln(cmd.OutOrStdout(), ip)

				return nil
			}),
		},
		newCaptureCommand(withDevice),
		&cobra.Command{
			Use:   "teardown",
			Short: "Release all resources of the device",
			Args:  cobra.NoArgs,
			RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, _ []string) error {
				return dev.Teardown(cmd.Context()) //nolint:wrapcheck
			}),
		},
	)

	return deviceCmd
}

func printState(w io.Writer, state worker.StateResponse, err error) error {
	if err != nil {
		return err
	}

	if state.Backend != "" {
		fmt.Fprintf(w, "%s (%s)\n", state.State, state.Backend)
	} else {
		fmt.Fprintln(w, state.State)
	}

	return nil
}

func newSelectCommand(
	withDevice func(deviceAction) func(*cobra.Command, []string) error,
) *cobra.Command {
	var kind, options, optionsFile string

	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Set up the device backend",
		Args:  cobra.NoArgs,
		RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, _ []string) error {
			raw := []byte(options)

			if optionsFile != "" {
				var err error

				raw, err = os.ReadFile(optionsFile)
				if err != nil {
					return err //nolint:wrapcheck
				}
			}

			if len(raw) > 0 && !json.Valid(raw) {
				return fmt.Errorf("%w: options are not valid JSON", device.ErrInvalidOption)
			}

			state, err := dev.Select(cmd.Context(), device.Kind(kind), raw)

			return printState(cmd.OutOrStdout(), state, err)
		}),
	}

	selectCmd.Flags().StringVarP(&kind, "type", "t", string(device.KindQemu),
		"backend type: qemu or blockdev")
	selectCmd.Flags().StringVar(&options, "options", "", "backend options as JSON")
	selectCmd.Flags().StringVar(&optionsFile, "options-file", "",
		"file with backend options as JSON")
	selectCmd.MarkFlagsMutuallyExclusive("options", "options-file")

	return selectCmd
}

func newFlashCommand(
	withDevice func(deviceAction) func(*cobra.Command, []string) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   "flash IMAGE",
		Short: "Flash the OS image onto the device",
		Long: `Flash the OS image onto the device.

Images with the suffix ".gz" are sent compressed and decompressed by the
worker.`,
		Args: cobra.ExactArgs(1),
		RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err //nolint:wrapcheck
			}
			defer file.Close()

			info, err := file.Stat()
			if err != nil {
				return err //nolint:wrapcheck
			}

			ctx := cmd.Context()
			compressed := strings.HasSuffix(args[0], ".gz")

			err = dev.Flash(ctx, file, info.Size(), compressed, func(p device.Progress) {
				logger.InfoKV(ctx, "Flashing",
					"stage", p.Stage,
					"bytes", p.Bytes,
					"percent", int(p.Percentage),
				)
			})
			if err != nil {
				return err //nolint:wrapcheck
			}

			fmt.Fprintln(cmd.OutOrStdout(), "flashed", args[0])

			return nil
		}),
	}
}

func newNetworkCommand(
	withDevice func(deviceAction) func(*cobra.Command, []string) error,
) *cobra.Command {
	var (
		wired, nat bool
		ssid, psk  string
	)

	networkCmd := &cobra.Command{
		Use:   "network",
		Short: "Configure the network of the device",
		Long: `Configure the network of the device.

Without flags, the network of the device is removed. Changes take effect on
the next power on.`,
		Args: cobra.NoArgs,
		RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, _ []string) error {
			var cfg device.NetworkConfig

			if wired || nat {
				cfg.Wired = &device.WiredConfig{NAT: nat}
			}

			if ssid != "" {
				cfg.Wireless = &device.WirelessConfig{SSID: ssid, PSK: psk}
			}

			return dev.Network(cmd.Context(), cfg) //nolint:wrapcheck
		}),
	}

	networkCmd.Flags().BoolVar(&wired, "wired", false, "attach a wired network")
	networkCmd.Flags().BoolVar(&nat, "nat", false,
		"masquerade the wired network traffic, implies --wired")
	networkCmd.Flags().StringVar(&ssid, "ssid", "", "SSID of a wireless network")
	networkCmd.Flags().StringVar(&psk, "psk", "", "passphrase of the wireless network")

	return networkCmd
}

func newCaptureCommand(
	withDevice func(deviceAction) func(*cobra.Command, []string) error,
) *cobra.Command {
	var output string

	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the screen of the device",
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop capturing and download the frames",
		Args:  cobra.NoArgs,
		RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, _ []string) error {
			file, err := os.Create(output)
			if err != nil {
				return err //nolint:wrapcheck
			}

			err = dev.StopCapture(cmd.Context(), file)
			if err != nil {
				_ = file.Close()
				_ = os.Remove(output)

				return err //nolint:wrapcheck
			}

			return file.Close() //nolint:wrapcheck
		}),
	}

	stopCmd.Flags().StringVarP(&output, "output", "o", "capture.cpio.gz",
		"file the gzip compressed frame archive is written to")

	captureCmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start capturing",
			Args:  cobra.NoArgs,
			RunE: withDevice(func(cmd *cobra.Command, dev *client.Device, _ []string) error {
				return dev.StartCapture(cmd.Context()) //nolint:wrapcheck
			}),
		},
		stopCmd,
	)

	return captureCmd
}
