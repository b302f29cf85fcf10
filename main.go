package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/iqfeedd/iqfeedd/config"
	"github.com/iqfeedd/iqfeedd/control"
	"github.com/iqfeedd/iqfeedd/controller"
	"github.com/iqfeedd/iqfeedd/device"
	"github.com/iqfeedd/iqfeedd/dsp"
	"github.com/iqfeedd/iqfeedd/fec"
	"github.com/iqfeedd/iqfeedd/frame"
	"github.com/iqfeedd/iqfeedd/netio"
	"github.com/iqfeedd/iqfeedd/radio"
	"github.com/iqfeedd/iqfeedd/tui"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var configFile = koanf.New(".")

func getConfigPath() string {
	paths := []string{"/etc/iqfeedd/config.hcl", "~/.config/iqfeedd/config.hcl", "./config.hcl"}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path
		}
	}
	log.Info("Config file not found!")
	return ""
}

func loadConfig() {
	if err := configFile.Load(file.Provider(getConfigPath()), hcl.Parser(true)); err != nil {
		log.Errorf("Could not read config file: %v", err)
		log.Error("Attempting to use environment variables")
		configFile.Load(env.Provider("", env.Opt{
			Prefix: "IQFEEDD_",
			TransformFunc: func(k, v string) (string, any) {
				key := strings.ToLower(strings.TrimPrefix(k, "IQFEEDD_"))
				k = strings.Replace(key, "_", ".", 1)
				fmt.Printf("Found config env var: %s=%v\n", k, v)
				return k, v
			},
		}), nil)
	}
}

func tuiConfFromFile() config.TuiConf {
	return config.TuiConf{
		RefreshMs:          intOr(configFile.Int("tui.refresh_ms"), 500),
		BufferWarnPct:      floatOr(configFile.Float64("tui.buffer_threshold_warn_pct"), 80),
		BufferCritPct:      floatOr(configFile.Float64("tui.buffer_threshold_crit_pct"), 95),
		FECRecoveryWarnPct: floatOr(configFile.Float64("tui.fec_recovery_threshold_warn_pct"), 10),
		EnableLogOutput:    configFile.Bool("tui.enable_log_output"),
	}
}

func intOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func floatOr(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func main() {
	log.Info("Starting iqfeedd")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(prof)
		defer pprof.StopCPUProfile()
	}

	loadConfig()

	switch flags.Command() {
	case "probe":
		adapter := radio.NewSoapyAdapter(cli.Probe.Type)
		names, err := adapter.ListDevices()
		if err != nil {
			log.Fatalf("Could not enumerate %s devices: %v", cli.Probe.Type, err)
		}
		for i, name := range names {
			fmt.Printf("%d: %s\n", i, name)
		}

	case "rx":
		runRx(cli.Rx.endpoint)

	case "tx":
		runTx(cli.Tx.endpoint)

	default:
		log.Info("Command not recognized")
	}
}

func openAdapter(ep endpoint) *radio.SoapyAdapter {
	adapter := radio.NewSoapyAdapter(ep.Type)
	index := 0
	fmt.Sscanf(ep.Device, "%d", &index)
	if err := adapter.Open(index); err != nil {
		log.Fatalf("Could not open device: %v", err)
	}
	return adapter
}

func runRx(ep endpoint) {
	adapter := openAdapter(ep)

	deviceCfg := config.DeviceConf{
		Driver:      ep.Type,
		Frequency:   configFile.Float64("device.frequency"),
		SampleRate:  configFile.Float64("device.sample_rate"),
		Gain:        configFile.Float64("device.gain"),
		AGC:         configFile.Bool("device.agc"),
		AntennaBias: configFile.Bool("device.antenna_bias"),
	}
	startupKeys := map[string]string{
		"freq":  fmt.Sprintf("%f", deviceCfg.Frequency),
		"srate": fmt.Sprintf("%f", deviceCfg.SampleRate),
		"gain":  fmt.Sprintf("%f", deviceCfg.Gain),
		"agc":   boolConfigValue(deviceCfg.AGC),
	}
	if deviceCfg.AntennaBias {
		startupKeys["antbias"] = "1"
	}
	if outcomes := adapter.Configure(startupKeys); anyRejected(outcomes) {
		log.Fatalf("Could not apply startup device configuration")
	}

	bytesPerSample, effectiveBits, err := adapter.GetDeviceSampleSize()
	if err != nil {
		log.Fatalf("Could not read device sample size: %v", err)
	}
	sampleRate, err := adapter.GetSampleRate()
	if err != nil {
		log.Fatalf("Could not read device sample rate: %v", err)
	}
	freq, err := adapter.GetFrequency()
	if err != nil {
		log.Fatalf("Could not read device frequency: %v", err)
	}

	dspCfg := config.DSPConf{
		Log2Factor: configFile.Int("dsp.log2_factor"),
		FCPos:      configFile.String("dsp.fcpos"),
	}
	decim, err := dsp.NewDecimator(dspCfg.Log2Factor, parseFCPos(dspCfg.FCPos), sampleRate)
	if err != nil {
		log.Fatalf("Could not build decimator: %v", err)
	}

	transportCfg := config.TransportConf{
		FECBlocks: intOr(configFile.Int("transport.fec_blocks"), 16),
		TxDelayUs: configFile.Int("transport.tx_delay_us"),
	}
	codec, err := fec.NewCodec(transportCfg.FECBlocks)
	if err != nil {
		log.Fatalf("Could not build FEC codec: %v", err)
	}

	packer := frame.NewPacker(frame.PackerConfig{
		CenterFrequencyKHz: uint32(freq / 1000),
		SampleRate:         uint32(sampleRate / float64(int(1)<<dspCfg.Log2Factor)),
		BytesPerSample:     bytesPerSample,
		EffectiveBits:      effectiveBits,
		FECBlocks:          uint8(transportCfg.FECBlocks),
	}, codec, func() (uint32, uint32) {
		now := time.Now()
		return uint32(now.Unix()), uint32(now.Nanosecond() / 1000)
	})

	sink, err := netio.NewSink(fmt.Sprintf("%s:%d", ep.Address, ep.DataPort), time.Duration(transportCfg.TxDelayUs)*time.Microsecond)
	if err != nil {
		log.Fatalf("Could not open data sink: %v", err)
	}

	rx := controller.NewRxController(adapter, sink, decim, packer, sampleRate, effectiveBits)

	if ep.Config != "" {
		log.Infof("Initial configuration ack: %s", rx.ApplyConfig(ep.Config))
	}

	startControlChannel(fmt.Sprintf(":%d", ep.CtrlPort), rx.ApplyConfig)

	runWithSignals(rx.Stop)

	go func() {
		if err := rx.Run(); err != nil {
			log.Errorf("rx: pipeline stopped: %v", err)
		}
	}()

	tui.StartUI(rx, "rx", int(10*sampleRate), tuiConfFromFile())
}

func runTx(ep endpoint) {
	adapter := openAdapter(ep)

	deviceCfg := config.DeviceConf{
		Driver:     ep.Type,
		Frequency:  configFile.Float64("device.frequency"),
		SampleRate: configFile.Float64("device.sample_rate"),
	}
	adapter.Configure(map[string]string{
		"freq":  fmt.Sprintf("%f", deviceCfg.Frequency),
		"srate": fmt.Sprintf("%f", deviceCfg.SampleRate),
	})

	bytesPerSample, effectiveBits, err := adapter.GetDeviceSampleSize()
	if err != nil {
		log.Fatalf("Could not read device sample size: %v", err)
	}
	sampleRate, err := adapter.GetSampleRate()
	if err != nil {
		log.Fatalf("Could not read device sample rate: %v", err)
	}

	dspCfg := config.DSPConf{Log2Factor: configFile.Int("dsp.log2_factor")}
	interp, err := dsp.NewInterpolator(dspCfg.Log2Factor, sampleRate)
	if err != nil {
		log.Fatalf("Could not build interpolator: %v", err)
	}

	fecBlocks := intOr(configFile.Int("transport.fec_blocks"), 16)
	codec, err := fec.NewCodec(fecBlocks)
	if err != nil {
		log.Fatalf("Could not build FEC codec: %v", err)
	}
	unpacker := frame.NewUnpacker(codec, bytesPerSample)

	source, err := netio.NewSource(fmt.Sprintf("%s:%d", ep.Address, ep.DataPort))
	if err != nil {
		log.Fatalf("Could not open data source: %v", err)
	}

	tx := controller.NewTxController(adapter, source, unpacker, interp, sampleRate, effectiveBits)

	if ep.Config != "" {
		log.Infof("Initial configuration ack: %s", tx.ApplyConfig(ep.Config))
	}

	startControlChannel(fmt.Sprintf(":%d", ep.CtrlPort), tx.ApplyConfig)

	runWithSignals(tx.Stop)

	go func() {
		if err := tx.Run(); err != nil {
			log.Errorf("tx: pipeline stopped: %v", err)
		}
	}()

	tui.StartUI(tx, "tx", int(10*sampleRate), tuiConfFromFile())
}

// startControlChannel listens for paired control-channel connections and
// dispatches every request to apply, replying with the encoded ack.
func startControlChannel(addr string, apply func(string) string) {
	ch, err := control.Listen(addr)
	if err != nil {
		log.Fatalf("Could not listen on control channel %s: %v", addr, err)
	}
	go func() {
		if err := ch.Serve(apply); err != nil {
			log.Warnf("control channel stopped: %v", err)
		}
	}()
}

// runWithSignals arranges for stop to be called, at most once, on the
// first SIGINT or SIGTERM, triggering the Draining transition.
func runWithSignals(stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Received stop signal, draining")
		stop()
	}()
}

func boolConfigValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func anyRejected(outcomes map[string]device.KeyOutcome) bool {
	for _, o := range outcomes {
		if !o.OK {
			return true
		}
	}
	return false
}

func parseFCPos(s string) dsp.FCPos {
	switch s {
	case "infra":
		return dsp.FCInfra
	case "supra":
		return dsp.FCSupra
	default:
		return dsp.FCCenter
	}
}
