// internal/sequencer/encode.go
package sequencer

import (
	"strconv"
	"strings"
)

// BaudRateCode maps a line rate to the BAUD_RATE_SET parameter. Rates the
// target does not know map to 9600.
func BaudRateCode(rate uint32) byte {
	switch rate {
	case 19200:
		return 0x04
	case 31250:
		return 0x05
	case 38400:
		return 0x06
	case 76800:
		return 0x07
	case 153600:
		return 0x08
	case 57600:
		return 0x09
	case 115200:
		return 0x0A
	case 128000:
		return 0x0B
	default:
		return 0x03
	}
}

// EffectiveBaudRate returns the rate the target will actually run at.
func EffectiveBaudRate(rate uint32) uint32 {
	if BaudRateCode(rate) == 0x03 {
		return 9600
	}
	return rate
}

// SupportedBaudRates lists the rates with their own code.
var SupportedBaudRates = []uint32{9600, 19200, 31250, 38400, 57600, 76800, 115200, 128000, 153600}

// EncodeOscillatorFrequency builds the OSC_FREQUENCY_SET payload: three
// decimal digits of the frequency in kHz followed by the kHz digit count,
// so that kHz = 0.d1d2d3 * 10^count. 5 MHz encodes as 5,0,0,4.
func EncodeOscillatorFrequency(hz uint32) ([]byte, error) {
	if hz == 0 {
		return nil, &ValidationError{Field: "oscillator frequency", Value: hz, Reason: "must be positive"}
	}
	if hz%1000 != 0 {
		return nil, &ValidationError{Field: "oscillator frequency", Value: hz, Reason: "must be a whole number of kHz"}
	}

	digits := strconv.FormatUint(uint64(hz/1000), 10)
	if len(strings.TrimRight(digits, "0")) > 3 {
		return nil, &ValidationError{Field: "oscillator frequency", Value: hz, Reason: "more than three significant digits"}
	}

	payload := make([]byte, 4)
	for i := 0; i < 3 && i < len(digits); i++ {
		payload[i] = digits[i] - '0'
	}
	payload[3] = byte(len(digits))
	return payload, nil
}
