package control

import "strings"

// Outcome is the per-key result reported back after a reconfiguration
// request.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeClamped
	OutcomeRejected
	OutcomeIgnored // unknown key, logged and skipped
)

// KeyResult pairs a key with its outcome and, for Rejected, the reason.
type KeyResult struct {
	Key    string
	Result Outcome
	Reason string
}

func (r KeyResult) String() string {
	switch r.Result {
	case OutcomeOK:
		return r.Key + "=ok"
	case OutcomeClamped:
		return r.Key + "=clamped"
	case OutcomeIgnored:
		return r.Key + "=ignored"
	default:
		return r.Key + "=rejected:" + r.Reason
	}
}

// Ack is the acknowledgement message the control channel sends back for
// a reconfiguration request: one entry per key, in request order.
type Ack struct {
	Results []KeyResult
}

// Encode renders the ack as the comma-separated reply string.
func (a Ack) Encode() string {
	parts := make([]string, len(a.Results))
	for i, r := range a.Results {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

// ApplyOrder groups parsed keys into the four-phase apply order:
// device-common and device-specific keys first, then DSP keys, then
// transport/packaging keys. Unknown keys are returned separately so the
// caller can report them as Ignored without attempting to apply them.
func ApplyOrder(kvs []KV) (device, dsp, transport []KV, unknown []KV) {
	for _, kv := range kvs {
		switch kv.Group {
		case GroupDeviceCommon, GroupDeviceSpecific:
			device = append(device, kv)
		case GroupDSP:
			dsp = append(dsp, kv)
		case GroupTransport:
			transport = append(transport, kv)
		default:
			unknown = append(unknown, kv)
		}
	}
	return
}
