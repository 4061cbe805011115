// Command and response codes for the Tock bootloader's serial
// protocol, grounded on apache-mynewt-newt's
// newtmgr/protocol/defs.go NMGR_* constant blocks: that file's flat
// "one const block per code family" layout is reused here for the
// bootloader's command/response opcodes instead of newtmgr's
// group/op/id triad.
package bootloader

// Escape/framing bytes.
const (
	Esc      byte = 0x1B
	RspStart byte = 0xFC
)

// Command codes.
const (
	CmdPing             byte = 0x01
	CmdInfo             byte = 0x03
	CmdId               byte = 0x04
	CmdReadRange        byte = 0x12
	CmdWritePage        byte = 0x13
	CmdErasePage        byte = 0x14
	CmdCrcInternalFlash byte = 0x16
	CmdChangeBaud       byte = 0x21
	CmdGetAttribute     byte = 0x22
	CmdSetAttribute     byte = 0x23
	CmdSetStartAddress  byte = 0x25
	CmdExit             byte = 0x28
)

// Response codes.
const (
	RspOk           byte = 0x00
	RspBadAddr      byte = 0x01
	RspInternalErr  byte = 0x02
	RspBadArgs      byte = 0x03
	RspAlreadyDone  byte = 0x04
	RspRange        byte = 0x05
	RspBadLen       byte = 0x06
	RspPong         byte = 0x11
	RspReadRange    byte = 0x12
	RspCrcInternal  byte = 0x16
	RspUnknown      byte = 0x30
)

// InfoBlobSize is the length of the INFO command's response payload.
const InfoBlobSize = 192

// ChangeBaudMode selects CHANGE_BAUD's behavior: Set applies the new
// rate on the device side and awaits the host's reopen; Confirm
// acknowledges that the host has reopened at the new rate.
type ChangeBaudMode uint8

const (
	ChangeBaudSet     ChangeBaudMode = 0
	ChangeBaudConfirm ChangeBaudMode = 1
)

// commandName is used only for log/error messages; it is not part of
// the wire protocol.
func commandName(cmd byte) string {
	switch cmd {
	case CmdPing:
		return "PING"
	case CmdInfo:
		return "INFO"
	case CmdId:
		return "ID"
	case CmdReadRange:
		return "READ_RANGE"
	case CmdWritePage:
		return "WRITE_PAGE"
	case CmdErasePage:
		return "ERASE_PAGE"
	case CmdCrcInternalFlash:
		return "CRC_IFLASH"
	case CmdChangeBaud:
		return "CHANGE_BAUD"
	case CmdGetAttribute:
		return "GET_ATTRIBUTE"
	case CmdSetAttribute:
		return "SET_ATTRIBUTE"
	case CmdSetStartAddress:
		return "SET_START_ADDRESS"
	case CmdExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}
