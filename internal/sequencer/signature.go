// internal/sequencer/signature.go
package sequencer

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Silicon signature layout: VEN, MET, MSC, DEC, END(3), DEV(10), SCF, BOT.
const (
	sigVendor     = 0
	sigMacroExt   = 1
	sigMacroFunc  = 2
	sigDeviceExt  = 3
	sigEndAddress = 4
	sigDeviceName = 7
	sigNameLen    = 10
	sigSecurity   = 17
	sigBootBlock  = 18
	sigMinLen     = sigDeviceName + sigNameLen
)

// SiliconSignature is the parsed SILICON_SIGNATURE reply.
type SiliconSignature struct {
	Raw             []byte `json:"-"`
	VendorCode      byte   `json:"vendor_code"`
	MacroExtension  byte   `json:"macro_extension"`
	MacroFunction   byte   `json:"macro_function"`
	DeviceExtension byte   `json:"device_extension"`
	EndAddress      uint32 `json:"end_address"`
	DeviceName      string `json:"device_name"`
	SecurityFlags   byte   `json:"security_flags"`
	BootBlock       byte   `json:"boot_block"`
}

// ParseSiliconSignature decodes the signature data frame payload. The top
// bit of each name character is parity and is dropped.
func ParseSiliconSignature(payload []byte) (*SiliconSignature, error) {
	if len(payload) < sigMinLen {
		return nil, fmt.Errorf("silicon signature too short: %d bytes, need %d", len(payload), sigMinLen)
	}

	name := make([]byte, sigNameLen)
	for i := range name {
		name[i] = payload[sigDeviceName+i] & 0x7F
	}

	sig := &SiliconSignature{
		Raw:             append([]byte(nil), payload...),
		VendorCode:      payload[sigVendor] & 0x7F,
		MacroExtension:  payload[sigMacroExt] & 0x7F,
		MacroFunction:   payload[sigMacroFunc] & 0x7F,
		DeviceExtension: payload[sigDeviceExt] & 0x7F,
		EndAddress: uint32(payload[sigEndAddress]) |
			uint32(payload[sigEndAddress+1])<<8 |
			uint32(payload[sigEndAddress+2])<<16,
		DeviceName: strings.TrimRight(string(name), " \x00"),
	}
	if len(payload) > sigSecurity {
		sig.SecurityFlags = payload[sigSecurity]
	}
	if len(payload) > sigBootBlock {
		sig.BootBlock = payload[sigBootBlock]
	}
	return sig, nil
}

// RawHex returns the undecoded signature as hex.
func (s *SiliconSignature) RawHex() string {
	return hex.EncodeToString(s.Raw)
}
