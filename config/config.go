// Package config holds the koanf-tagged settings structs filled from
// the HCL file or environment variables that loadConfig in main.go
// loads.
package config

// DeviceConf is the device-common configuration applied at startup:
// the device-common key group, plus the driver/index selection from
// the invocation surface.
type DeviceConf struct {
	Driver      string  `koanf:"driver"`
	DeviceIndex int     `koanf:"device_index"`
	Frequency   float64 `koanf:"frequency"`
	SampleRate  float64 `koanf:"sample_rate"`
	Gain        float64 `koanf:"gain"`
	AGC         bool    `koanf:"agc"`
	AntennaBias bool    `koanf:"antenna_bias"`
}

// DSPConf is the decimation/interpolation stage's startup configuration.
type DSPConf struct {
	Log2Factor int    `koanf:"log2_factor"`
	FCPos      string `koanf:"fcpos"` // "infra" | "supra" | "center"
}

// TransportConf is the frame packaging and UDP pacing configuration.
type TransportConf struct {
	FECBlocks int `koanf:"fec_blocks"`
	TxDelayUs int `koanf:"tx_delay_us"`
	DataPort  int `koanf:"data_port"`
	CtrlPort  int `koanf:"ctrl_port"`
}

// TuiConf configures the operational dashboard's refresh rate and
// alert thresholds.
type TuiConf struct {
	RefreshMs          int     `koanf:"refresh_ms"`
	BufferWarnPct      float64 `koanf:"buffer_threshold_warn_pct"`
	BufferCritPct      float64 `koanf:"buffer_threshold_crit_pct"`
	FECRecoveryWarnPct float64 `koanf:"fec_recovery_threshold_warn_pct"`
	EnableLogOutput    bool    `koanf:"enable_log_output"`
}
