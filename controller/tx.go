package controller

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/iqfeedd/iqfeedd/buffer"
	"github.com/iqfeedd/iqfeedd/control"
	"github.com/iqfeedd/iqfeedd/device"
	"github.com/iqfeedd/iqfeedd/dsp"
	"github.com/iqfeedd/iqfeedd/fec"
	"github.com/iqfeedd/iqfeedd/frame"
	"github.com/iqfeedd/iqfeedd/netio"
)

// TxController owns the network-to-device pipeline: UDP source -> frame
// unpacker -> interpolator -> sample buffer -> device adapter.
type TxController struct {
	adapter device.Adapter
	source  *netio.Source
	buf     *buffer.Buffer

	stateMu sync.Mutex
	state   State

	cfgMu    sync.Mutex
	unpacker *frame.Unpacker
	interp   *dsp.Interpolator

	bitsWidth      uint8
	sampleRate     float64
	minFillSamples int
	overrunWarned  bool

	framesReceived  atomic.Uint64
	framesLost      atomic.Uint64
	framesRecovered atomic.Uint64

	spectrumMu  sync.Mutex
	spectrumTap []complex64

	stopFlag chan struct{}
}

// NewTxController wires the pipeline around an already-listening source.
func NewTxController(adapter device.Adapter, source *netio.Source, unpacker *frame.Unpacker, interp *dsp.Interpolator, sampleRate float64, bitsWidth uint8) *TxController {
	return &TxController{
		adapter:        adapter,
		source:         source,
		buf:            buffer.New(),
		unpacker:       unpacker,
		interp:         interp,
		bitsWidth:      bitsWidth,
		sampleRate:     sampleRate,
		minFillSamples: int(sampleRate / 10),
		state:          StateCreated,
		stopFlag:       make(chan struct{}),
	}
}

// Run starts the UDP receive loop and the device consumer and blocks
// until either side fails or Stop is called.
func (c *TxController) Run() error {
	c.setState(StateStreaming)

	sourceErr := make(chan error, 1)
	go func() {
		sourceErr <- c.source.Serve(c.handleDatagram)
	}()

	deviceErr := make(chan error, 1)
	go func() {
		deviceErr <- c.adapter.Start(device.DirectionTx, c.stopFlag, c.buf)
	}()

	select {
	case err := <-sourceErr:
		c.setState(StateStopped)
		return err
	case err := <-deviceErr:
		c.setState(StateStopped)
		return err
	case <-c.stopFlag:
		c.setState(StateStopped)
		return nil
	}
}

// handleDatagram is the netio.Handler invoked for every well-formed
// datagram the source receives: it feeds the unpacker and pushes every
// resulting frame's interpolated samples onto the device buffer.
func (c *TxController) handleDatagram(raw []byte) {
	c.cfgMu.Lock()
	results, err := c.unpacker.Receive(raw)
	interp := c.interp
	bitsWidth := c.bitsWidth
	c.cfgMu.Unlock()

	if err != nil {
		log.Warnf("tx: dropped malformed datagram: %v", err)
		return
	}

	if queued := c.buf.QueuedSamples(); queued > int(10*c.sampleRate) {
		if !c.overrunWarned {
			log.Warnf("tx: output buffer is growing (device too slow): %d samples queued", queued)
			c.overrunWarned = true
		}
	} else {
		c.overrunWarned = false
	}

	for _, r := range results {
		c.framesReceived.Add(1)
		switch {
		case r.Lost:
			c.framesLost.Add(1)
			log.Warnf("tx: frame %d lost: %v", r.FrameIndex, r.Err)
		case r.Recovered:
			c.framesRecovered.Add(1)
		}
		vec := make([]complex64, len(r.Samples))
		for i, s := range r.Samples {
			vec[i] = s.ToComplex64(bitsWidth)
		}
		c.tapSpectrum(vec)
		c.buf.Push(interp.Process(vec))
	}
}

// Stop requests a drain-and-stop transition: the device stops consuming,
// the source socket closes (unblocking Serve) and any partially
// assembled frame in the unpacker's window is discarded, not padded.
func (c *TxController) Stop() {
	c.setState(StateDraining)
	close(c.stopFlag)
	c.buf.PushEnd()
	_ = c.adapter.Stop()
	_ = c.source.Close()
}

func (c *TxController) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State reports the controller's current lifecycle state.
func (c *TxController) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// tapSpectrum records the most recent reassembled sample block for
// Samples, mirroring RxController's tap on the other side of the wire.
func (c *TxController) tapSpectrum(samples []complex64) {
	n := len(samples)
	if n > spectrumTapMaxSamples {
		samples = samples[n-spectrumTapMaxSamples:]
	}
	snapshot := append([]complex64(nil), samples...)
	c.spectrumMu.Lock()
	c.spectrumTap = snapshot
	c.spectrumMu.Unlock()
}

// Samples returns a copy of the most recently reassembled sample block,
// for the dashboard's spectrum plot.
func (c *TxController) Samples() []complex64 {
	c.spectrumMu.Lock()
	defer c.spectrumMu.Unlock()
	return c.spectrumTap
}

// ApplyConfig mirrors RxController.ApplyConfig for the Tx-side keys:
// device keys, then the interpolator's "interp" factor, then the
// unpacker's FEC codec.
func (c *TxController) ApplyConfig(raw string) string {
	kvs, err := control.Parse(raw)
	if err != nil {
		return parseErrorAck(err).Encode()
	}

	deviceKVs, dspKVs, transportKVs, unknown := control.ApplyOrder(kvs)

	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()

	deviceResults := applyDeviceKeys(c.adapter, deviceKVs)
	dspResults := c.applyDSPKeys(dspKVs)
	transportResults := c.applyTransportKeys(transportKVs)
	unknownResults := ignoredResults(unknown)

	results := orderResults(
		group{deviceKVs, deviceResults},
		group{dspKVs, dspResults},
		group{transportKVs, transportResults},
		group{unknown, unknownResults},
	)

	return control.Ack{Results: results}.Encode()
}

func (c *TxController) applyDSPKeys(kvs []control.KV) []control.KeyResult {
	results := make([]control.KeyResult, 0, len(kvs))
	log2 := c.interp.Log2Factor()
	changed := false

	for _, kv := range kvs {
		switch kv.Key {
		case "interp":
			v, err := control.ParseUint(kv.Value, 8)
			if err != nil {
				results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeRejected, Reason: "parse"})
				continue
			}
			if int(v) > dsp.MaxLog2Factor {
				results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeRejected, Reason: "interp out of range [0,6]"})
				continue
			}
			log2 = int(v)
			changed = true
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeOK})
		case "fcpos":
			// Interpolation is always centered: accepted for grammar
			// symmetry with the Rx side but has no effect here.
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeIgnored})
		default:
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeIgnored})
		}
	}

	if changed {
		it, err := dsp.NewInterpolator(log2, c.sampleRate)
		if err != nil {
			for i := range results {
				if results[i].Result == control.OutcomeOK {
					results[i] = control.KeyResult{Key: results[i].Key, Result: control.OutcomeRejected, Reason: err.Error()}
				}
			}
			return results
		}
		c.interp = it
	}
	return results
}

func (c *TxController) applyTransportKeys(kvs []control.KV) []control.KeyResult {
	results := make([]control.KeyResult, 0, len(kvs))
	var fecBlocks *uint64

	for _, kv := range kvs {
		switch kv.Key {
		case "fecblk":
			v, err := control.ParseUint(kv.Value, 8)
			if err != nil {
				results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeRejected, Reason: "parse"})
				continue
			}
			if v > fec.MaxM {
				results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeRejected, Reason: "fecblk out of range [0,127]"})
				continue
			}
			fecBlocks = &v
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeOK})
		case "txdelay":
			// Pacing is a sink (Rx-side) concern; accepted here as a
			// no-op so the same grammar works against either endpoint.
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeIgnored})
		default:
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeIgnored})
		}
	}

	if fecBlocks != nil {
		codec, err := fec.NewCodec(int(*fecBlocks))
		if err != nil {
			for i := range results {
				if results[i].Key == "fecblk" {
					results[i] = control.KeyResult{Key: "fecblk", Result: control.OutcomeRejected, Reason: err.Error()}
				}
			}
			return results
		}
		c.unpacker.Reconfigure(codec)
	}
	return results
}
