// Package radio adapts SoapySDR to the device.Adapter contract: a
// multi-driver, bidirectional adapter selected at runtime by the -t
// flag.
package radio

// #cgo CFLAGS: -g -Wall
// #cgo LDFLAGS: -lSoapySDR
import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/iqfeedd/iqfeedd/buffer"
	"github.com/iqfeedd/iqfeedd/device"

	soapydevice "github.com/pothosware/go-soapy-sdr/pkg/device"
	"github.com/pothosware/go-soapy-sdr/pkg/modules"
	"github.com/pothosware/go-soapy-sdr/pkg/sdrlogger"
	"github.com/pothosware/go-soapy-sdr/pkg/version"
)

// InitSoapySDR logs library and module diagnostics and quiets
// SoapySDR's own logger.
func InitSoapySDR() {
	log.Debugf("Using SoapySDR versions: ABI: %s API: %s Lib: %s", version.GetABIVersion(), version.GetAPIVersion(), version.GetLibVersion())
	log.Debugf("SoapySDR modules root path: %v", modules.GetRootPath())

	searchPaths := modules.ListSearchPaths()
	if len(searchPaths) > 0 {
		for i, searchPath := range searchPaths {
			log.Debugf("Search path #%d: %v", i, searchPath)
		}
	} else {
		log.Debug("Search paths: [none]")
	}
	sdrlogger.SetLogLevel(sdrlogger.Error)
}

// LogAvailSettings logs a device's settings, gains and channel info.
func LogAvailSettings(dev *soapydevice.SDRDevice, dir soapydevice.Direction) {
	log.Infof("Current settings:")
	for _, setting := range dev.GetSettingInfo() {
		log.Infof("\t- %s: %v", setting.Key, setting.Value)
	}

	numChannels := dev.GetNumChannels(dir)
	log.Info("Channel info:")
	for channel := uint(0); channel < numChannels; channel++ {
		log.Infof("Channel %d:", channel)
		log.Infof("\tSample rate: %v", dev.GetSampleRate(dir, channel))
		log.Infof("\tIQ sample types: %v", dev.GetStreamFormats(dir, channel))
	}
}

// SoapyAdapter is a device.Adapter backed by SoapySDR. It is not
// generic over sample type: the stream is always opened as CF32
// (SoapySDR's native complex-float format), handed to callers as
// complex64 vectors through a buffer.Buffer.
type SoapyAdapter struct {
	Driver string

	dev       *soapydevice.SDRDevice
	rxStream  *soapydevice.SDRStreamCF32
	txStream  *soapydevice.SDRStreamCF32
	channel   uint
	bitsWidth uint8

	freqHz   float64
	sampleHz float64
}

// NewSoapyAdapter constructs an adapter bound to the given driver name
// (e.g. "rtlsdr", "hackrf", "rtltcp").
func NewSoapyAdapter(driver string) *SoapyAdapter {
	return &SoapyAdapter{Driver: driver, bitsWidth: 16}
}

// ListDevices enumerates devices visible to this driver.
func (a *SoapyAdapter) ListDevices() ([]string, error) {
	args := map[string]string{"driver": a.Driver}
	found := soapydevice.Enumerate(args)
	names := make([]string, len(found))
	for i, d := range found {
		if label, ok := d["label"]; ok {
			names[i] = label
		} else {
			names[i] = d["driver"]
		}
	}
	return names, nil
}

// Open acquires the device at the given enumeration index for this
// driver.
func (a *SoapyAdapter) Open(index int) error {
	InitSoapySDR()

	args := map[string]string{"driver": a.Driver}
	found := soapydevice.Enumerate(args)
	if index < 0 || index >= len(found) {
		return fmt.Errorf("radio: device index %d out of range (%d found)", index, len(found))
	}

	dev, err := soapydevice.Make(found[index])
	if err != nil {
		return fmt.Errorf("radio: could not open device: %w", err)
	}
	a.dev = dev
	return nil
}

// Configure applies device-common and device-specific keys, reporting
// a per-key outcome. Applying is best-effort: a rejected key does not
// undo keys already applied.
func (a *SoapyAdapter) Configure(kv map[string]string) map[string]device.KeyOutcome {
	out := make(map[string]device.KeyOutcome, len(kv))
	dir := soapydevice.DirectionRX

	for key, value := range kv {
		switch key {
		case "freq":
			out[key] = a.applyFloat(key, value, func(hz float64) error {
				if err := a.dev.SetFrequency(dir, a.channel, hz, nil); err != nil {
					return err
				}
				a.freqHz = hz
				return nil
			})
		case "srate":
			out[key] = a.applyFloat(key, value, func(hz float64) error {
				if err := a.dev.SetSampleRate(dir, a.channel, hz); err != nil {
					return err
				}
				a.sampleHz = hz
				return nil
			})
		case "gain":
			out[key] = a.applyFloat(key, value, func(db float64) error {
				return a.dev.SetGain(dir, a.channel, db)
			})
		case "lgain", "mgain", "vgain", "v1gain", "v2gain":
			elementName := key[:len(key)-4]
			out[key] = a.applyFloat(key, value, func(db float64) error {
				return a.dev.SetGainElement(dir, a.channel, elementName, db)
			})
		case "bw", "bwfilter":
			out[key] = a.applyFloat(key, value, func(hz float64) error {
				return a.dev.SetBandwidth(dir, a.channel, hz)
			})
		case "agc":
			out[key] = a.applyBool(key, value, func(on bool) error {
				return a.dev.SetGainMode(dir, a.channel, on)
			})
		case "antbias":
			out[key] = a.applyBool(key, value, func(on bool) error {
				return a.dev.WriteSetting("biastee", boolString(on))
			})
		case "ppmp", "ppmn":
			// Positive correction wins; ppmn arrives as a
			// negative-sense value already.
			if _, both := kv["ppmp"]; key == "ppmn" && both {
				out[key] = device.KeyOutcome{Reason: "ppmp in the same request takes precedence"}
				continue
			}
			out[key] = a.applyFloat(key, value, func(ppm float64) error {
				return a.dev.SetFrequency(dir, a.channel, a.freqHz, map[string]string{"CORR": strconv.FormatFloat(ppm, 'f', -1, 64)})
			})
		default:
			// Driver-specific passthrough keys (extamp, lagc, magc,
			// pwidle, blklen, power, dfp, dfn, file) have no common
			// SoapySDR setter; forward them as generic string settings
			// and let the driver accept or ignore them.
			out[key] = a.applyString(key, value, func(v string) error {
				return a.dev.WriteSetting(key, v)
			})
		}
	}
	return out
}

func (a *SoapyAdapter) applyFloat(key, value string, set func(float64) error) device.KeyOutcome {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return device.KeyOutcome{Reason: fmt.Sprintf("%s: invalid numeric value %q", key, value)}
	}
	if err := set(v); err != nil {
		return device.KeyOutcome{Reason: err.Error()}
	}
	return device.KeyOutcome{OK: true}
}

func (a *SoapyAdapter) applyBool(key, value string, set func(bool) error) device.KeyOutcome {
	on := value == "1" || value == "true"
	if err := set(on); err != nil {
		return device.KeyOutcome{Reason: err.Error()}
	}
	return device.KeyOutcome{OK: true}
}

func (a *SoapyAdapter) applyString(key, value string, set func(string) error) device.KeyOutcome {
	if err := set(value); err != nil {
		return device.KeyOutcome{Reason: err.Error()}
	}
	return device.KeyOutcome{OK: true}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// GetFrequency returns the device's current RX center frequency as
// reported by SoapySDR.
func (a *SoapyAdapter) GetFrequency() (float64, error) {
	return a.dev.GetFrequency(soapydevice.DirectionRX, a.channel), nil
}

// GetSampleRate returns the device's current RX sample rate as reported
// by SoapySDR.
func (a *SoapyAdapter) GetSampleRate() (float64, error) {
	return a.dev.GetSampleRate(soapydevice.DirectionRX, a.channel), nil
}

// GetDeviceSampleSize reports the wire width of the CF32 stream: this
// adapter always presents 16-bit-equivalent precision to the rest of the
// pipeline regardless of the underlying driver's native ADC width.
func (a *SoapyAdapter) GetDeviceSampleSize() (uint8, uint8, error) {
	return 2, a.bitsWidth, nil
}

// Start begins streaming in the given direction until stopFlag closes,
// pushing to (Rx) or pulling from (Tx) buf, the sample buffer
// decoupling the device callback from the processing goroutine.
func (a *SoapyAdapter) Start(dir device.Direction, stopFlag <-chan struct{}, buf *buffer.Buffer) error {
	soapyDir := soapydevice.DirectionRX
	if dir == device.DirectionTx {
		soapyDir = soapydevice.DirectionTX
	}

	stream, err := a.dev.SetupSDRStreamCF32(soapyDir, []uint{a.channel}, nil)
	if err != nil {
		return fmt.Errorf("radio: could not set up stream: %w", err)
	}
	if err := stream.Activate(0, 0, 0); err != nil {
		return fmt.Errorf("radio: could not activate stream: %w", err)
	}

	if dir == device.DirectionRx {
		a.rxStream = stream
		return a.runRx(stream, stopFlag, buf)
	}
	a.txStream = stream
	return a.runTx(stream, stopFlag, buf)
}

const soapyReadTimeoutUs = 100000

func (a *SoapyAdapter) runRx(stream *soapydevice.SDRStreamCF32, stopFlag <-chan struct{}, buf *buffer.Buffer) error {
	const chunk = 4096
	chanBuf := make([][]complex64, 1)
	chanBuf[0] = make([]complex64, chunk)
	flags := make([]int, 1)

	for {
		select {
		case <-stopFlag:
			return nil
		default:
		}

		_, n, err := stream.Read(chanBuf, chunk, flags, soapyReadTimeoutUs)
		if err != nil {
			return fmt.Errorf("radio: stream read failed: %w", err)
		}
		vec := make([]complex64, n)
		copy(vec, chanBuf[0][:n])
		buf.Push(vec)
	}
}

func (a *SoapyAdapter) runTx(stream *soapydevice.SDRStreamCF32, stopFlag <-chan struct{}, buf *buffer.Buffer) error {
	flags := make([]int, 1)
	for {
		select {
		case <-stopFlag:
			return nil
		default:
		}
		if buf.QueuedSamples() == 0 {
			buf.WaitFill(1)
		}
		vec := buf.Pull()
		if vec == nil {
			return nil
		}
		chanBuf := make([][]complex64, 1)
		chanBuf[0] = vec
		if _, _, err := stream.Write(chanBuf, uint(len(vec)), flags, 0, soapyReadTimeoutUs); err != nil {
			return fmt.Errorf("radio: stream write failed: %w", err)
		}
	}
}

// Stop deactivates and closes whichever stream direction is open.
func (a *SoapyAdapter) Stop() error {
	if a.rxStream != nil {
		if err := a.rxStream.Deactivate(0, 0); err != nil {
			log.Warnf("radio: stream deactivate: %v", err)
		}
		if err := a.rxStream.Close(); err != nil {
			log.Warnf("radio: stream close: %v", err)
		}
		a.rxStream = nil
	}
	if a.txStream != nil {
		if err := a.txStream.Deactivate(0, 0); err != nil {
			log.Warnf("radio: stream deactivate: %v", err)
		}
		if err := a.txStream.Close(); err != nil {
			log.Warnf("radio: stream close: %v", err)
		}
		a.txStream = nil
	}
	return nil
}

// PrintSpecificParms logs the device's settings and channel info.
func (a *SoapyAdapter) PrintSpecificParms() {
	if a.dev == nil {
		return
	}
	LogAvailSettings(a.dev, soapydevice.DirectionRX)
}

// Close releases the device.
func (a *SoapyAdapter) Close() error {
	return a.Stop()
}
