package devproto

import "errors"

// Error kinds from spec.md §7. Transport errors are recovered locally by
// one reconnect-and-retry; these sentinels are what finally surfaces to a
// caller once that local recovery is exhausted.
var (
	ErrDeviceAbsent       = errors.New("devproto: no device enumerated in either mode")
	ErrModeSwitchFailed   = errors.New("devproto: wake sent but monitor mode did not appear in time")
	ErrTransportIO        = errors.New("devproto: usb transport failed after reconnect")
	ErrBadResponse        = errors.New("devproto: response truncated or malformed")
	ErrFlowControlTimeout = errors.New("devproto: device buffer did not drain within budget")
	ErrStreamAborted      = errors.New("devproto: stream aborted by cancellation or repeated failure")
)
