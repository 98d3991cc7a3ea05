// Package device implements the Device Adapter: the boundary between a
// parsed command and the channel (printer, PLC, or bridge board) that owns
// its parameter. Only simulation channels are implemented; live fieldbus or
// serial dialects are out of scope for this bridge.
package device

import "context"

// NAK reasons a channel's reply can carry. The simulation channel only ever
// returns ParseError, and the router's channel lookup returns UnknownDevice;
// the others are part of the taxonomy and are kept here so callers have one
// place to match against regardless of which adapter is wired in.
const (
	NAKReadOnly          = "NAK_ReadOnly"
	NAKUnknownParam      = "NAK_UnknownParam"
	NAKOutOfRange        = "NAK_OutOfRange"
	NAKDeviceDown        = "NAK_DeviceDown"
	NAKDeviceComm        = "NAK_DeviceComm"
	NAKDeviceBadResponse = "NAK_DeviceBadResponse"
	NAKDeviceRejected    = "NAK_DeviceRejected"
	NAKUnknownDevice     = "NAK_UnknownDevice"
	NAKMappingMissing    = "NAK_MappingMissing"
	NAKParseError        = "NAK_ParseError"
)

// Command is the minimal shape a Channel needs from a parsed command; it
// mirrors command.Command without importing it, so device stays independent
// of the parser's internals.
type Command struct {
	PKey   string
	Value  string
	IsRead bool
}

// Channel is the Device Adapter boundary: one implementation per physical
// or simulated device, addressed by the prefix router's channel name.
type Channel interface {
	// Execute runs one parsed command and returns its reply line, always
	// well-formed: "pkey=value" for a read, "ACK_pkey=value" for an accepted
	// write, or "pkey=NAK_<reason>" / a bare
	// "NAK_<reason>" when the parameter key could not be determined.
	Execute(ctx context.Context, cmd Command) string
}
