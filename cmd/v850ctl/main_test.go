package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"v850-service/internal/sequencer"
	"v850-service/internal/simulator"
)

func noSleep(context.Context, time.Duration) error { return nil }

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "usb:\n  transfer_mode: simulator\n  bulk_timeout: 100ms\ntarget:\n  oscillator_mhz: \"5\"\n  baud_rate: 9600\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	var out bytes.Buffer
	cmd := newRootCmd(sequencer.WithSleep(noSleep))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", writeConfig(t)}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTargetCommands(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"reset", []string{"reset"}, []string{"RESET ok on simulator", "reset: true"}},
		{"signature", []string{"signature"}, []string{"SIGNATURE ok", "device_name: " + simulator.DefaultDeviceName}},
		{"oscillator", []string{"osc", "8"}, []string{"OSCILLATOR_SET ok", "oscillator_hz: 8000000"}},
		{"baud rate", []string{"baud", "38400"}, []string{"BAUD_RATE_SET ok", "baud_rate: 38400"}},
		{"bring-up", []string{"bringup", "--osc-mhz", "5", "--baud", "115200"}, []string{"BRINGUP ok", "signature:", "baud_rate: 115200"}},
		{"mode override", []string{"--mode", "simulator", "reset"}, []string{"RESET ok"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if err != nil {
				t.Fatalf("error = %v\n%s", err, out)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"oscillator not a number", []string{"osc", "fast"}},
		{"oscillator out of range", []string{"osc", "4.915"}},
		{"baud rate not a number", []string{"baud", "fast"}},
		{"missing argument", []string{"baud"}},
		{"unknown mode", []string{"--mode", "carrier-pigeon", "reset"}},
		{"unknown scan type", []string{"devices", "--type", "bluetooth"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out, err := run(t, tt.args...); err == nil {
				t.Errorf("expected error, output:\n%s", out)
			}
		})
	}
}
