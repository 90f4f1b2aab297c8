package wbus

import "errors"

// ErrTimeout is returned by ReadPacket when no valid frame arrives within
// the requested window.
var ErrTimeout = errors.New("wbus: read timeout")

// ErrNotDecoded is returned by the parser when a multi-status TLV
// response contains an unknown ID; the parser aborts rather than risk
// desyncing on an unrecognized width.
var ErrNotDecoded = errors.New("wbus: response not decoded")
