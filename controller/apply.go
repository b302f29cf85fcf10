package controller

import (
	"sort"

	"github.com/iqfeedd/iqfeedd/control"
	"github.com/iqfeedd/iqfeedd/device"
)

// group pairs one phase's parsed keys with the KeyResults ApplyConfig's
// phased application produced for them, in matching order.
type group struct {
	kvs     []control.KV
	results []control.KeyResult
}

// orderResults restores request order across the phased device/DSP/
// transport/unknown apply groups: each group's KeyResults come back in
// the same order as the KVs fed into it, so zipping each group's KVs
// (which carry their original request Index) with its results and
// sorting the combined set by Index reconstructs the order the keys
// appeared in the request, per §6 ("Replies mirror the request order").
func orderResults(groups ...group) []control.KeyResult {
	type indexed struct {
		idx int
		res control.KeyResult
	}
	var all []indexed
	for _, g := range groups {
		for i, kv := range g.kvs {
			all = append(all, indexed{idx: kv.Index, res: g.results[i]})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].idx < all[j].idx })
	out := make([]control.KeyResult, len(all))
	for i, e := range all {
		out[i] = e.res
	}
	return out
}

// applyDeviceKeys runs a batch of device-layer keys through the adapter
// and translates its per-key outcome into control.KeyResult values.
func applyDeviceKeys(adapter device.Adapter, kvs []control.KV) []control.KeyResult {
	if len(kvs) == 0 {
		return nil
	}
	kv := make(map[string]string, len(kvs))
	for _, e := range kvs {
		kv[e.Key] = e.Value
	}
	outcomes := adapter.Configure(kv)

	results := make([]control.KeyResult, len(kvs))
	for i, e := range kvs {
		o, ok := outcomes[e.Key]
		switch {
		case !ok:
			results[i] = control.KeyResult{Key: e.Key, Result: control.OutcomeRejected, Reason: "not reported by device adapter"}
		case o.OK && o.Clamped:
			results[i] = control.KeyResult{Key: e.Key, Result: control.OutcomeClamped}
		case o.OK:
			results[i] = control.KeyResult{Key: e.Key, Result: control.OutcomeOK}
		default:
			results[i] = control.KeyResult{Key: e.Key, Result: control.OutcomeRejected, Reason: o.Reason}
		}
	}
	return results
}

func ignoredResults(kvs []control.KV) []control.KeyResult {
	if len(kvs) == 0 {
		return nil
	}
	results := make([]control.KeyResult, len(kvs))
	for i, e := range kvs {
		results[i] = control.KeyResult{Key: e.Key, Result: control.OutcomeIgnored}
	}
	return results
}

// parseErrorAck builds the single-entry ack for a request that failed to
// parse: nothing is applied.
func parseErrorAck(err error) control.Ack {
	return control.Ack{Results: []control.KeyResult{
		{Key: "*", Result: control.OutcomeRejected, Reason: err.Error()},
	}}
}
