// internal/frame/command.go
package frame

import "fmt"

// Frame markers.
const (
	SOH byte = 0x01
	STX byte = 0x02
	ETX byte = 0x03
	ETB byte = 0x17
)

// Command is the command byte of a command frame.
type Command byte

const (
	CmdReset            Command = 0x00
	CmdVerify           Command = 0x13
	CmdChipErase        Command = 0x20
	CmdBlockErase       Command = 0x22
	CmdBlockBlankCheck  Command = 0x32
	CmdProgramming      Command = 0x40
	CmdRead             Command = 0x50
	CmdStatus           Command = 0x70
	CmdOscFrequencySet  Command = 0x90
	CmdBaudRateSet      Command = 0x9A
	CmdSecurityGet      Command = 0xA0
	CmdChecksum         Command = 0xB0
	CmdSiliconSignature Command = 0xC0
	CmdVersionGet       Command = 0xC5
)

func (c Command) String() string {
	switch c {
	case CmdReset:
		return "RESET"
	case CmdVerify:
		return "VERIFY"
	case CmdChipErase:
		return "CHIP_ERASE"
	case CmdBlockErase:
		return "BLOCK_ERASE"
	case CmdBlockBlankCheck:
		return "BLOCK_BLANK_CHECK"
	case CmdProgramming:
		return "PROGRAMMING"
	case CmdRead:
		return "READ"
	case CmdStatus:
		return "STATUS"
	case CmdOscFrequencySet:
		return "OSC_FREQUENCY_SET"
	case CmdBaudRateSet:
		return "BAUD_RATE_SET"
	case CmdSecurityGet:
		return "SECURITY_GET"
	case CmdChecksum:
		return "CHECKSUM"
	case CmdSiliconSignature:
		return "SILICON_SIGNATURE"
	case CmdVersionGet:
		return "VERSION_GET"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
	}
}

// Status is the first payload byte of a status data frame.
type Status byte

const (
	StatusCommandError  Status = 0x04
	StatusParamError    Status = 0x05
	StatusACK           Status = 0x06
	StatusChecksumError Status = 0x07
	StatusVerifyError   Status = 0x0F
	StatusProtectError  Status = 0x10
	StatusNACK          Status = 0x15
	StatusMRG10Error    Status = 0x1A
	StatusMRG11Error    Status = 0x1B
	StatusWriteError    Status = 0x1C
	StatusReadError     Status = 0x20
	StatusBusy          Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusCommandError:
		return "COMMAND_ERROR"
	case StatusParamError:
		return "PARAM_ERROR"
	case StatusACK:
		return "ACK"
	case StatusChecksumError:
		return "CHECKSUM_ERROR"
	case StatusVerifyError:
		return "VERIFY_ERROR"
	case StatusProtectError:
		return "PROTECT_ERROR"
	case StatusNACK:
		return "NACK"
	case StatusMRG10Error:
		return "MRG10_ERROR"
	case StatusMRG11Error:
		return "MRG11_ERROR"
	case StatusWriteError:
		return "WRITE_ERROR"
	case StatusReadError:
		return "READ_ERROR"
	case StatusBusy:
		return "BUSY"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", byte(s))
	}
}
