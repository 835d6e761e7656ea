// cmd/v850ctl/target.go
package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"v850-service/internal/config"
	"v850-service/internal/model"
)

func newBringUpCmd(a *app) *cobra.Command {
	var oscMHz string
	var baud uint32

	cmd := &cobra.Command{
		Use:   "bringup",
		Short: "Reset the target, read its signature, set oscillator and baud rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var hz uint32
			if oscMHz != "" {
				var err error
				if hz, err = config.ParseMHz(oscMHz); err != nil {
					return err
				}
			}
			session, err := a.targetService().BringUp(cmd.Context(), a.selector, hz, baud)
			return report(cmd.OutOrStdout(), session, err)
		},
	}
	cmd.Flags().StringVar(&oscMHz, "osc-mhz", "", "target oscillator in MHz (default from config)")
	cmd.Flags().Uint32Var(&baud, "baud", 0, "baud rate to switch to (default from config)")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.targetService().Reset(cmd.Context(), a.selector)
			return report(cmd.OutOrStdout(), session, err)
		},
	}
}

func newSignatureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signature",
		Short: "Read the silicon signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := a.targetService().Signature(cmd.Context(), a.selector)
			return report(cmd.OutOrStdout(), session, err)
		},
	}
}

func newOscillatorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "osc <mhz>",
		Short: "Announce the target oscillator frequency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hz, err := config.ParseMHz(args[0])
			if err != nil {
				return err
			}
			session, err := a.targetService().SetOscillator(cmd.Context(), a.selector, hz)
			return report(cmd.OutOrStdout(), session, err)
		},
	}
}

func newBaudRateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "baud <rate>",
		Short: "Switch the target and the bridge to a new baud rate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || rate == 0 {
				return fmt.Errorf("invalid baud rate %q", args[0])
			}
			session, err := a.targetService().SetBaudRate(cmd.Context(), a.selector, uint32(rate))
			return report(cmd.OutOrStdout(), session, err)
		},
	}
}

// report prints the session outcome and passes err through.
func report(out io.Writer, session *model.Session, err error) error {
	if session == nil {
		return err
	}

	if err != nil {
		color.New(color.FgRed).Fprintf(out, "%s failed", session.Operation)
		fmt.Fprintf(out, " on %s\n", deviceLabel(session))
		return err
	}

	color.New(color.FgGreen).Fprintf(out, "%s ok", session.Operation)
	fmt.Fprintf(out, " on %s", deviceLabel(session))
	if session.DurationMs != nil {
		fmt.Fprintf(out, " (%d ms)", *session.DurationMs)
	}
	fmt.Fprintln(out)
	printResult(out, "  ", session.Result)
	return nil
}

func deviceLabel(s *model.Session) string {
	if s.Device == "" {
		return s.TransferMode
	}
	return s.Device
}

func printResult(out io.Writer, indent string, result map[string]interface{}) {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := result[k].(type) {
		case model.JSONObject:
			fmt.Fprintf(out, "%s%s:\n", indent, k)
			printResult(out, indent+"  ", v)
		case map[string]interface{}:
			fmt.Fprintf(out, "%s%s:\n", indent, k)
			printResult(out, indent+"  ", v)
		default:
			fmt.Fprintf(out, "%s%s: %v\n", indent, k, v)
		}
	}
}
