package serial

import (
	"context"
	"errors"
	"testing"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap/zaptest"
)

func TestScanMatchesKnownBridges(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001"},
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "045B", PID: "0212", SerialNumber: "RL78"},
		{Name: "/dev/ttyUSB2", IsUSB: true, VID: "0409", PID: "0063", SerialNumber: "JX3"},
		{Name: "/dev/ttyUSB3", IsUSB: true, VID: "zz", PID: "0063"},
	}
	s := NewScannerWithLister(zaptest.NewLogger(t), func() ([]*enumerator.PortDetails, error) {
		return ports, nil
	})

	bridges, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(bridges) != 2 {
		t.Fatalf("got %d bridges, want 2", len(bridges))
	}

	first := bridges[0]
	if first.Port != "/dev/ttyUSB2" || first.VendorID != "0x0409" || first.ProductID != "0x0063" {
		t.Errorf("first bridge = %+v", first)
	}
	if first.Board != "V850ESJX3-STICK" || first.SerialNumber != "JX3" {
		t.Errorf("first bridge details = %+v", first)
	}
	if bridges[1].Port != "/dev/ttyUSB1" {
		t.Errorf("second bridge port = %q", bridges[1].Port)
	}
}

func TestScanListError(t *testing.T) {
	s := NewScannerWithLister(zaptest.NewLogger(t), func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("no sysfs")
	})
	if _, err := s.Scan(context.Background()); err == nil {
		t.Error("Scan() expected error")
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScannerWithLister(zaptest.NewLogger(t), func() ([]*enumerator.PortDetails, error) {
		t.Fatal("lister called after cancel")
		return nil, nil
	})
	if _, err := s.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}
