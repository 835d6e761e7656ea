// internal/bridge/line.go
package bridge

import (
	"encoding/binary"
	"fmt"
)

// FlowControl selects the bridge's UART flow control.
type FlowControl byte

const (
	FlowNone     FlowControl = 0
	FlowHardware FlowControl = 1
	FlowSoftware FlowControl = 2
)

func (f FlowControl) String() string {
	switch f {
	case FlowNone:
		return "none"
	case FlowHardware:
		return "hardware"
	case FlowSoftware:
		return "software"
	default:
		return fmt.Sprintf("FlowControl(%d)", byte(f))
	}
}

// Parity selects the UART parity.
type Parity byte

const (
	ParityNone Parity = 0
	ParityEven Parity = 1
	ParityOdd  Parity = 2
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return fmt.Sprintf("Parity(%d)", byte(p))
	}
}

// StopBits is 1 or 2.
type StopBits byte

const (
	StopBits1 StopBits = 1
	StopBits2 StopBits = 2
)

// DataSize is 7 or 8 bits.
type DataSize byte

const (
	DataSize7 DataSize = 7
	DataSize8 DataSize = 8
)

// LineConfig is the full UART setting, always sent as a whole.
type LineConfig struct {
	BaudRate    uint32
	FlowControl FlowControl
	Parity      Parity
	StopBits    StopBits
	DataSize    DataSize
}

// Line8N1 returns 8 data bits, no parity, 1 stop bit, no flow control.
func Line8N1(baud uint32) LineConfig {
	return LineConfig{
		BaudRate:    baud,
		FlowControl: FlowNone,
		Parity:      ParityNone,
		StopBits:    StopBits1,
		DataSize:    DataSize8,
	}
}

func (c LineConfig) String() string {
	parity := "N"
	switch c.Parity {
	case ParityEven:
		parity = "E"
	case ParityOdd:
		parity = "O"
	}
	return fmt.Sprintf("%d %d%s%d flow=%s", c.BaudRate, c.DataSize, parity, c.StopBits, c.FlowControl)
}

// Validate rejects field values the bridge cannot encode.
func (c LineConfig) Validate() error {
	if c.BaudRate == 0 {
		return fmt.Errorf("baud rate must be positive")
	}
	if c.FlowControl > FlowSoftware {
		return fmt.Errorf("invalid flow control %d", c.FlowControl)
	}
	if c.Parity > ParityOdd {
		return fmt.Errorf("invalid parity %d", c.Parity)
	}
	if c.StopBits != StopBits1 && c.StopBits != StopBits2 {
		return fmt.Errorf("invalid stop bits %d", c.StopBits)
	}
	if c.DataSize != DataSize7 && c.DataSize != DataSize8 {
		return fmt.Errorf("invalid data size %d", c.DataSize)
	}
	return nil
}

// params packs flow (bits 5-4), parity (3-2), stop bits (1) and data size (0).
func (c LineConfig) params() byte {
	var b byte
	b |= byte(c.FlowControl) << 4
	b |= byte(c.Parity) << 2
	if c.StopBits == StopBits2 {
		b |= 1 << 1
	}
	if c.DataSize == DataSize8 {
		b |= 1
	}
	return b
}

// Request ids, the first byte of every control payload.
const (
	reqLineControl byte = 0x00
	reqSetDTRRTS   byte = 0x01
	reqSetXonXoff  byte = 0x02
	reqOpenClose   byte = 0x03
	reqSetErrChar  byte = 0x04

	dtrBit byte = 1 << 1
	rtsBit byte = 1 << 0
)

// EncodeLineControl builds [0x00, baud LE32, params].
func EncodeLineControl(c LineConfig) []byte {
	buf := make([]byte, 6)
	buf[0] = reqLineControl
	binary.LittleEndian.PutUint32(buf[1:5], c.BaudRate)
	buf[5] = c.params()
	return buf
}

// EncodeDTRRTS builds [0x01, bits] with DTR in bit 1 and RTS in bit 0.
func EncodeDTRRTS(dtr, rts bool) []byte {
	var bits byte
	if dtr {
		bits |= dtrBit
	}
	if rts {
		bits |= rtsBit
	}
	return EncodeDTRRTSBits(bits)
}

// EncodeDTRRTSBits builds [0x01, bits].
func EncodeDTRRTSBits(bits byte) []byte {
	return []byte{reqSetDTRRTS, bits}
}

// EncodeXonXoff builds [0x02, xon, xoff].
func EncodeXonXoff(xon, xoff byte) []byte {
	return []byte{reqSetXonXoff, xon, xoff}
}

// EncodeOpenClose builds [0x03, 1|0].
func EncodeOpenClose(open bool) []byte {
	return []byte{reqOpenClose, boolByte(open)}
}

// EncodeErrChar builds [0x04, 1|0, ch].
func EncodeErrChar(enabled bool, ch byte) []byte {
	return []byte{reqSetErrChar, boolByte(enabled), ch}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
