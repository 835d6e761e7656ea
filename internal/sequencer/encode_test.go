package sequencer

import (
	"bytes"
	"testing"
	"time"
)

func TestBaudRateCode(t *testing.T) {
	tests := []struct {
		rate uint32
		want byte
	}{
		{9600, 0x03},
		{19200, 0x04},
		{31250, 0x05},
		{38400, 0x06},
		{76800, 0x07},
		{153600, 0x08},
		{57600, 0x09},
		{115200, 0x0A},
		{128000, 0x0B},
		{0, 0x03},
		{4800, 0x03},
		{230400, 0x03},
	}

	for _, tt := range tests {
		if got := BaudRateCode(tt.rate); got != tt.want {
			t.Errorf("BaudRateCode(%d) = 0x%02X, want 0x%02X", tt.rate, got, tt.want)
		}
	}
}

func TestBaudRateCodeIsTotal(t *testing.T) {
	seen := map[byte]uint32{}
	for _, rate := range SupportedBaudRates {
		code := BaudRateCode(rate)
		if code < 0x03 || code > 0x0B {
			t.Errorf("BaudRateCode(%d) = 0x%02X out of range", rate, code)
		}
		if prev, ok := seen[code]; ok {
			t.Errorf("rates %d and %d share code 0x%02X", prev, rate, code)
		}
		seen[code] = rate
		if EffectiveBaudRate(rate) != rate {
			t.Errorf("EffectiveBaudRate(%d) = %d", rate, EffectiveBaudRate(rate))
		}
	}
	if EffectiveBaudRate(250000) != 9600 {
		t.Error("unsupported rate should fall back to 9600")
	}
}

func TestEncodeOscillatorFrequency(t *testing.T) {
	tests := []struct {
		hz      uint32
		want    []byte
		wantErr bool
	}{
		{5000000, []byte{5, 0, 0, 4}, false},
		{20000000, []byte{2, 0, 0, 5}, false},
		{4000000, []byte{4, 0, 0, 4}, false},
		{2500000, []byte{2, 5, 0, 4}, false},
		{12500000, []byte{1, 2, 5, 5}, false},
		{32000, []byte{3, 2, 0, 2}, false},
		{1000, []byte{1, 0, 0, 1}, false},
		{0, nil, true},
		{4915200, nil, true},
		{12345000, nil, true},
		{1500, nil, true},
	}

	for _, tt := range tests {
		got, err := EncodeOscillatorFrequency(tt.hz)
		if (err != nil) != tt.wantErr {
			t.Errorf("EncodeOscillatorFrequency(%d) error = %v, wantErr %v", tt.hz, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !IsValidationError(err) {
				t.Errorf("EncodeOscillatorFrequency(%d) error %T is not a ValidationError", tt.hz, err)
			}
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeOscillatorFrequency(%d) = %v, want %v", tt.hz, got, tt.want)
		}
	}
}

func TestTiming(t *testing.T) {
	tests := []struct {
		fx    uint32
		tCOM  time.Duration
		t12   time.Duration
		tWT10 time.Duration
	}{
		// fxx = 20 MHz
		{5000000, 46 * time.Microsecond, 1500 * time.Microsecond, 119200 * time.Nanosecond},
		// fxx = 40 MHz
		{10000000, 30500 * time.Nanosecond, 750 * time.Microsecond, 59600 * time.Nanosecond},
	}

	for _, tt := range tests {
		timing := NewTiming(tt.fx)
		if got := timing.TCOM(); got != tt.tCOM {
			t.Errorf("fx=%d TCOM() = %v, want %v", tt.fx, got, tt.tCOM)
		}
		if got := timing.T12(); got != tt.t12 {
			t.Errorf("fx=%d T12() = %v, want %v", tt.fx, got, tt.t12)
		}
		if timing.T2C() != timing.T12() {
			t.Errorf("fx=%d T2C() = %v, want T12()", tt.fx, timing.T2C())
		}
		if got := timing.TWT10(); got != tt.tWT10 {
			t.Errorf("fx=%d TWT10() = %v, want %v", tt.fx, got, tt.tWT10)
		}
	}

	if NewTiming(0).OscillatorHz != DefaultOscillatorHz {
		t.Error("NewTiming(0) should select the default oscillator")
	}
}

func TestParseSiliconSignature(t *testing.T) {
	payload := []byte{
		0x10, 0x7F, 0x04, 0x00,
		0xFF, 0xFF, 0x03,
		'U' | 0x80, 'P', 'D', '7', '0', 'F' | 0x80, '3', '7', '4', '6',
		0x00, 0x03,
	}

	sig, err := ParseSiliconSignature(payload)
	if err != nil {
		t.Fatalf("ParseSiliconSignature() error = %v", err)
	}
	if sig.DeviceName != "UPD70F3746" {
		t.Errorf("DeviceName = %q", sig.DeviceName)
	}
	if sig.EndAddress != 0x03FFFF {
		t.Errorf("EndAddress = %#x", sig.EndAddress)
	}
	if sig.BootBlock != 0x03 || sig.VendorCode != 0x10 {
		t.Errorf("signature = %+v", sig)
	}

	short := []byte{0x10, 'V', '8', '5', '0', ' ', ' '}
	if _, err := ParseSiliconSignature(short); err == nil {
		t.Error("expected error for short signature")
	}

	padded := append([]byte(nil), payload...)
	copy(padded[7:17], []byte{'V', '8', '5', '0', ' ', ' ', 0, 0, 0, 0})
	sig, err = ParseSiliconSignature(padded)
	if err != nil || sig.DeviceName != "V850" {
		t.Errorf("padded name = %q, %v", sig.DeviceName, err)
	}
}
