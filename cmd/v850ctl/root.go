// cmd/v850ctl/root.go
package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"v850-service/internal/config"
	"v850-service/internal/device"
	"v850-service/internal/repository"
	"v850-service/internal/sequencer"
	"v850-service/internal/service"
	"v850-service/internal/utils"
)

// app is the state shared by every subcommand.
type app struct {
	cfgFile  string
	verbose  bool
	mode     string
	selector device.Selector

	cfg    *config.Config
	logger *zap.Logger

	// seqOpts is appended to every sequencer; tests use it to skip waits.
	seqOpts []sequencer.Option
}

func newRootCmd(opts ...sequencer.Option) *cobra.Command {
	a := &app{seqOpts: opts}

	root := &cobra.Command{
		Use:   "v850ctl",
		Short: "V850ES/Jx3-L bring-up tool",
		Long: `Drives a V850ES/Jx3-L target through its uPD78F0730 USB-UART
bridge: reset, silicon signature, oscillator frequency and baud rate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = utils.CloseLogger(a.logger)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default: ./config.yaml when present)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "make verbose (enable debug logging)")
	flags.StringVarP(&a.mode, "mode", "m", "", "transfer mode: sync, async, serial or simulator")
	flags.StringVarP(&a.selector.Port, "port", "p", "", "serial port of the bridge (serial mode)")
	flags.IntVar(&a.selector.Bus, "bus", 0, "USB bus of the bridge")
	flags.IntVar(&a.selector.Address, "address", 0, "USB address of the bridge")

	root.AddCommand(
		newDevicesCmd(a),
		newBringUpCmd(a),
		newResetCmd(a),
		newSignatureCmd(a),
		newOscillatorCmd(a),
		newBaudRateCmd(a),
	)
	return root
}

// load reads the configuration with flag overrides applied.
func (a *app) load() error {
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	overrides := map[string]interface{}{
		"logging.format": "console",
		"logging.output": "stderr",
		"logging.level":  level,
	}
	if a.mode != "" {
		overrides["usb.transfer_mode"] = a.mode
	}
	if a.selector.Port != "" {
		overrides["usb.serial_port"] = a.selector.Port
	}

	cfg, err := config.LoadWithOverrides(a.cfgFile, overrides)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// targetService builds a service that keeps its sessions in memory.
func (a *app) targetService() *service.TargetService {
	return service.NewTargetService(a.cfg, repository.NewMemorySessionRepository(0), nil, a.logger,
		service.WithSequencerOptions(a.seqOpts...))
}
