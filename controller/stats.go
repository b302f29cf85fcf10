package controller

// Stats is a point-in-time snapshot of a controller's operational
// counters, polled by the dashboard (tui package) on a timer.
type Stats struct {
	State              State
	QueuedSamples      int
	FramesProcessed    uint64
	FramesLost         uint64
	FramesRecovered    uint64
	MalformedDatagrams uint64
}

// Stats snapshots RxController's counters.
func (c *RxController) Stats() Stats {
	return Stats{
		State:           c.State(),
		QueuedSamples:   c.buf.QueuedSamples(),
		FramesProcessed: c.framesSent.Load(),
	}
}

// Stats snapshots TxController's counters.
func (c *TxController) Stats() Stats {
	return Stats{
		State:              c.State(),
		QueuedSamples:      c.buf.QueuedSamples(),
		FramesProcessed:    c.framesReceived.Load(),
		FramesLost:         c.framesLost.Load(),
		FramesRecovered:    c.framesRecovered.Load(),
		MalformedDatagrams: c.source.Malformed(),
	}
}
