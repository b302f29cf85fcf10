package controller

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/iqfeedd/iqfeedd/buffer"
	"github.com/iqfeedd/iqfeedd/control"
	"github.com/iqfeedd/iqfeedd/device"
	"github.com/iqfeedd/iqfeedd/dsp"
	"github.com/iqfeedd/iqfeedd/fec"
	"github.com/iqfeedd/iqfeedd/frame"
	"github.com/iqfeedd/iqfeedd/netio"
)

// RxController owns the device-to-network pipeline: device adapter ->
// sample buffer -> decimator -> frame packer -> UDP sink.
type RxController struct {
	adapter device.Adapter
	buf     *buffer.Buffer
	sink    *netio.Sink

	stateMu sync.Mutex
	state   State

	cfgMu  sync.Mutex
	decim  *dsp.Decimator
	packer *frame.Packer

	bitsWidth      uint8
	sampleRate     float64
	minFillSamples int
	overrunWarned  bool

	framesSent atomic.Uint64

	spectrumMu  sync.Mutex
	spectrumTap []complex64

	stopFlag chan struct{}
}

// NewRxController wires the pipeline. decim and packer (with its FEC
// codec) are the initial configuration; later changes arrive through
// ApplyConfig.
func NewRxController(adapter device.Adapter, sink *netio.Sink, decim *dsp.Decimator, packer *frame.Packer, sampleRate float64, bitsWidth uint8) *RxController {
	return &RxController{
		adapter:        adapter,
		buf:            buffer.New(),
		sink:           sink,
		decim:          decim,
		packer:         packer,
		bitsWidth:      bitsWidth,
		sampleRate:     sampleRate,
		minFillSamples: int(sampleRate / 10), // ~100ms nominal fill, avoids pull-starvation thrashing
		state:          StateCreated,
		stopFlag:       make(chan struct{}),
	}
}

// Run starts the device producer and drives the processing loop until
// Stop is called or the device reports an error. It blocks until the
// pipeline has fully drained.
func (c *RxController) Run() error {
	c.setState(StateStreaming)

	deviceErr := make(chan error, 1)
	go func() {
		err := c.adapter.Start(device.DirectionRx, c.stopFlag, c.buf)
		// No more samples are coming either way: unblock a worker
		// parked in buf.Pull/WaitFill so it drains what is queued, and
		// so the device_error -> Stopped transition happens within the
		// bounded latency §5 requires instead of hanging on an empty
		// buffer that will never be pushed to again.
		c.buf.PushEnd()
		deviceErr <- err
	}()

	warmedUp := false
	for {
		select {
		case err := <-deviceErr:
			if err != nil {
				c.setState(StateStopped)
				return err
			}
			// Clean return from Start: keep pulling until the queued
			// samples are drained.
			deviceErr = nil
		default:
		}

		if queued := c.buf.QueuedSamples(); queued > int(10*c.sampleRate) {
			if !c.overrunWarned {
				log.Warnf("rx: input buffer is growing (system too slow): %d samples queued", queued)
				c.overrunWarned = true
			}
		} else {
			c.overrunWarned = false
		}

		if c.buf.QueuedSamples() == 0 {
			c.buf.WaitFill(c.minFillSamples)
		}
		vec := c.buf.Pull()
		if vec == nil {
			break // end-of-stream: draining complete
		}

		// Decimation, packaging and the resulting sink writes all read
		// or mutate controller-owned config state (c.decim, c.packer's
		// accumulator/meta/codec) that ApplyConfig can rewrite from the
		// control-channel goroutine at any time, so the whole pipeline
		// stage runs as one critical section: no reconfigure can land
		// between a meta read and the FEC encode it describes.
		c.cfgMu.Lock()
		err := c.processVec(vec, &warmedUp)
		c.cfgMu.Unlock()
		if err != nil {
			return err
		}
	}

	c.setState(StateStopped)
	select {
	case err := <-deviceErr:
		return err
	default:
		return nil
	}
}

// processVec decimates one pulled sample vector, feeds it to the packer
// and writes out any resulting frames. It must be called with cfgMu
// held: ApplyConfig mutates c.decim and c.packer's accumulator/meta/
// codec, and this is the only place those are read, so the whole stage
// has to run as one critical section (§5).
func (c *RxController) processVec(vec []complex64, warmedUp *bool) error {
	decimated := c.decim.Process(vec)
	bitsWidth := c.bitsWidth

	if !*warmedUp {
		// Discard the first decimated chunk: IF/halfband filters are
		// still settling, matching the original daemon's "throw away
		// first block" warmup.
		*warmedUp = true
		return nil
	}

	c.tapSpectrum(decimated)

	pairs := make([]frame.IQPair, len(decimated))
	for i, s := range decimated {
		pairs[i] = frame.FromComplex64(s, bitsWidth)
	}

	frames, err := c.packer.Feed(pairs)
	if err != nil {
		return fmt.Errorf("rx: packer error: %w", err)
	}
	for _, blocks := range frames {
		if err := c.sink.Write(blocks); err != nil {
			log.Warnf("rx: sink write failed: %v", err)
			continue
		}
		c.framesSent.Add(1)
	}
	return nil
}

// Stop requests a drain-and-stop transition: the device is told to stop
// producing, the buffer is consumed until empty and the current partial
// frame is discarded, not padded.
func (c *RxController) Stop() {
	c.setState(StateDraining)
	close(c.stopFlag)
	c.buf.PushEnd()
	_ = c.adapter.Stop()
}

func (c *RxController) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State reports the controller's current lifecycle state.
func (c *RxController) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// spectrumTapMaxSamples bounds how much of each decimated block is kept
// for the dashboard's spectrum widget, so a large block doesn't grow the
// snapshot without limit.
const spectrumTapMaxSamples = 4096

// tapSpectrum records the most recent decimated samples for Samples to
// hand to the dashboard's FFT, the same "keep the latest block for the
// UI" pattern the teacher's Demodulator.CurrentFFT follows.
func (c *RxController) tapSpectrum(samples []complex64) {
	n := len(samples)
	if n > spectrumTapMaxSamples {
		samples = samples[n-spectrumTapMaxSamples:]
	}
	snapshot := append([]complex64(nil), samples...)
	c.spectrumMu.Lock()
	c.spectrumTap = snapshot
	c.spectrumMu.Unlock()
}

// Samples returns a copy of the most recently decimated sample block, for
// the dashboard's spectrum plot.
func (c *RxController) Samples() []complex64 {
	c.spectrumMu.Lock()
	defer c.spectrumMu.Unlock()
	return c.spectrumTap
}

// ApplyConfig parses and applies a configuration string under one
// critical section, in device -> DSP -> packaging order, and returns
// the encoded acknowledgement with results restored to request order.
func (c *RxController) ApplyConfig(raw string) string {
	kvs, err := control.Parse(raw)
	if err != nil {
		return parseErrorAck(err).Encode()
	}

	deviceKVs, dspKVs, transportKVs, unknown := control.ApplyOrder(kvs)

	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()

	deviceResults := applyDeviceKeys(c.adapter, deviceKVs)
	dspResults, decimChanged := c.applyDSPKeys(dspKVs)
	transportResults := c.applyTransportKeys(transportKVs)
	unknownResults := ignoredResults(unknown)

	results := orderResults(
		group{deviceKVs, deviceResults},
		group{dspKVs, dspResults},
		group{transportKVs, transportResults},
		group{unknown, unknownResults},
	)

	freqOK := keySucceeded(results, "freq")
	srateOK := keySucceeded(results, "srate")
	if freqOK || srateOK || decimChanged {
		c.syncPackerMeta(freqOK, srateOK)
	}

	return control.Ack{Results: results}.Encode()
}

// keySucceeded reports whether key appears among results with an outcome
// that actually took effect (ok or clamped).
func keySucceeded(results []control.KeyResult, key string) bool {
	for _, r := range results {
		if r.Key == key && (r.Result == control.OutcomeOK || r.Result == control.OutcomeClamped) {
			return true
		}
	}
	return false
}

// syncPackerMeta re-reads whatever device state actually changed and
// folds it into the packer's meta configuration, so the next frame's
// meta block reflects the new center frequency and/or the new
// device-rate/decim sample rate instead of the values captured at
// startup (§8 Scenario E).
func (c *RxController) syncPackerMeta(freqOK, srateOK bool) {
	cfg := c.packer.Config()

	if srateOK {
		if rate, err := c.adapter.GetSampleRate(); err == nil {
			c.sampleRate = rate
			c.minFillSamples = int(rate / 10)
		}
	}
	if freqOK {
		if hz, err := c.adapter.GetFrequency(); err == nil {
			cfg.CenterFrequencyKHz = uint32(hz / 1000)
		}
	}
	cfg.SampleRate = uint32(c.sampleRate) >> uint(c.decim.Log2Factor())

	c.packer.Reconfigure(cfg, c.packer.Codec())
}

func (c *RxController) applyDSPKeys(kvs []control.KV) ([]control.KeyResult, bool) {
	results := make([]control.KeyResult, 0, len(kvs))
	log2 := c.decim.Log2Factor()
	fcPos := c.decim.FCPos()
	changed := false
	decimChanged := false

	for _, kv := range kvs {
		switch kv.Key {
		case "decim":
			v, err := control.ParseUint(kv.Value, 8)
			if err != nil {
				results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeRejected, Reason: "parse"})
				continue
			}
			if int(v) > dsp.MaxLog2Factor {
				results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeRejected, Reason: "decim out of range [0,6]"})
				continue
			}
			log2 = int(v)
			changed = true
			decimChanged = true
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeOK})
		case "fcpos":
			v, err := control.ParseUint(kv.Value, 8)
			if err != nil || v > 2 {
				results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeRejected, Reason: "fcpos must be 0, 1 or 2"})
				continue
			}
			fcPos = dsp.FCPos(v)
			changed = true
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeOK})
		default:
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeIgnored})
		}
	}

	if changed {
		d, err := dsp.NewDecimator(log2, fcPos, c.sampleRate)
		if err != nil {
			for i := range results {
				if results[i].Result == control.OutcomeOK {
					results[i] = control.KeyResult{Key: results[i].Key, Result: control.OutcomeRejected, Reason: err.Error()}
				}
			}
			return results, false
		}
		c.decim = d
		// The accumulator may hold samples decimated under the old
		// factor/fcpos; discard them so no frame straddles the change
		// (§5, property 7).
		c.packer.Reset()
	}
	return results, decimChanged
}

func (c *RxController) applyTransportKeys(kvs []control.KV) []control.KeyResult {
	results := make([]control.KeyResult, 0, len(kvs))
	fecBlocks := c.packer.Config().FECBlocks
	fecChanged := false

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
			fecBlocks = uint8(v)
			fecChanged = true
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeOK})
		case "txdelay":
			v, err := control.ParseUint(kv.Value, 32)
			if err != nil {
				results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeRejected, Reason: "txdelay must be a u32 microsecond count"})
				continue
			}
			c.sink.SetTxDelay(time.Duration(v) * time.Microsecond)
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeOK})
		default:
			results = append(results, control.KeyResult{Key: kv.Key, Result: control.OutcomeIgnored})
		}
	}

	if fecChanged {
		codec, err := fec.NewCodec(int(fecBlocks))
		if err != nil {
			for i := range results {
				if results[i].Key == "fecblk" {
					results[i] = control.KeyResult{Key: "fecblk", Result: control.OutcomeRejected, Reason: err.Error()}
				}
			}
			return results
		}
		cfg := c.packer.Config()
		cfg.FECBlocks = fecBlocks
		c.packer.Reconfigure(cfg, codec)
	}
	return results
}
