package main

// endpoint holds the invocation-surface flags shared by the rx and tx
// subcommands: device selector, data-socket address, and the datagram
// and control ports.
type endpoint struct {
	Type     string `short:"t" default:"rtlsdr" help:"Device type: rtlsdr|hackrf|airspy|bladerf|test|file"`
	Device   string `short:"d" default:"0" help:"Device index, or \"list\" to enumerate"`
	Address  string `short:"I" required:"" help:"Remote (rx) or local (tx) address for the data socket"`
	DataPort int    `short:"D" default:"9090" help:"Data datagram port"`
	CtrlPort int    `short:"C" default:"9091" help:"Control message port"`
	Config   string `short:"c" help:"Initial configuration string (key=value,...)"`
}

var cli struct {
	Verbose bool `help:"Prints debug output"`
	Profile bool `help:"Output a pprof profile"`

	Probe struct {
		Type string `short:"t" default:"rtlsdr" help:"Device type to enumerate"`
	} `cmd:"" help:"List the available devices for a driver"`

	Rx struct {
		endpoint
	} `cmd:"" help:"Read from the device and stream frames out over UDP"`

	Tx struct {
		endpoint
	} `cmd:"" help:"Receive frames over UDP and write them to the device"`
}
