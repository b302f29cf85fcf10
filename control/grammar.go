// Package control implements the live configuration grammar and the
// paired control channel: a comma-separated key=value string applied
// to the device, DSP and packaging layers, and the length-delimited
// transport that carries it.
package control

import (
	"fmt"
	"strconv"
	"strings"
)

// Group classifies a recognized key by which layer applies it, so the
// controller can enforce the device -> DSP -> packaging ordering
// regardless of the order keys appeared in the request.
type Group int

const (
	GroupTransport Group = iota
	GroupDSP
	GroupDeviceCommon
	GroupDeviceSpecific
	groupUnknown
)

// KV is one parsed key=value pair (or bare boolean key, value "1").
// Index is the key's position in the original request string, so a
// caller that groups keys by Group for phased application can still
// restore request order when reporting outcomes back (§6: "Replies
// mirror the request order").
type KV struct {
	Key   string
	Value string
	Group Group
	Index int
}

var keyGroups = map[string]Group{
	"txdelay": GroupTransport,
	"fecblk":  GroupTransport,

	"decim":  GroupDSP,
	"interp": GroupDSP,
	"fcpos":  GroupDSP,

	"freq":    GroupDeviceCommon,
	"srate":   GroupDeviceCommon,
	"ppmp":    GroupDeviceCommon,
	"ppmn":    GroupDeviceCommon,
	"agc":     GroupDeviceCommon,
	"antbias": GroupDeviceCommon,

	"gain":     GroupDeviceSpecific,
	"lgain":    GroupDeviceSpecific,
	"mgain":    GroupDeviceSpecific,
	"vgain":    GroupDeviceSpecific,
	"v1gain":   GroupDeviceSpecific,
	"v2gain":   GroupDeviceSpecific,
	"bwfilter": GroupDeviceSpecific,
	"bw":       GroupDeviceSpecific,
	"extamp":   GroupDeviceSpecific,
	"lagc":     GroupDeviceSpecific,
	"magc":     GroupDeviceSpecific,
	"pwidle":   GroupDeviceSpecific,
	"blklen":   GroupDeviceSpecific,
	"power":    GroupDeviceSpecific,
	"dfp":      GroupDeviceSpecific,
	"dfn":      GroupDeviceSpecific,
	"file":     GroupDeviceSpecific,
}

// ErrMalformed is returned by Parse when the grammar itself is invalid:
// an empty key, or a key repeated with conflicting values. It never
// modifies state -- the whole request is rejected.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("control: malformed configuration string: %s", e.Reason)
}

// Parse splits a comma-separated key[=value] string into ordered KV
// pairs. Bare keys are booleans and get value "1". Parsing is
// all-or-nothing: any malformed key fails the whole string before
// anything is applied.
func Parse(s string) ([]KV, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	out := make([]KV, 0, len(parts))
	seen := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, &ErrMalformed{Reason: "empty key"}
		}
		if !hasValue {
			value = "1"
		}
		value = strings.TrimSpace(value)
		if prev, dup := seen[key]; dup && prev != value {
			return nil, &ErrMalformed{Reason: fmt.Sprintf("key %q repeated with conflicting values", key)}
		}
		seen[key] = value
		group, known := keyGroups[key]
		if !known {
			group = groupUnknown
		}
		out = append(out, KV{Key: key, Value: value, Group: group, Index: len(out)})
	}
	return out, nil
}

// ParseUint parses a KV's value as an unsigned integer, for callers
// applying numeric keys (freq, srate, decim, fecblk, ...).
func ParseUint(v string, bitSize int) (uint64, error) {
	return strconv.ParseUint(v, 10, bitSize)
}

// ParseInt parses a KV's value as a signed integer (ppmp/ppmn).
func ParseInt(v string, bitSize int) (int64, error) {
	return strconv.ParseInt(v, 10, bitSize)
}
