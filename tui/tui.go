// Package tui is the operational dashboard shown while an rx or tx
// command is streaming: frame throughput, FEC recovery rate and sample
// buffer fill, replacing the teacher's GOES-demodulator-specific gauges
// with counters that make sense for a block-streaming daemon.
package tui

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/iqfeedd/iqfeedd/config"
	"github.com/iqfeedd/iqfeedd/controller"
)

// StatsSource is whichever controller (Rx or Tx) is currently streaming,
// and also the source of the sample block the spectrum plot is drawn
// from.
type StatsSource interface {
	Stats() controller.Stats
	Samples() []complex64
}

// spectrumBins is how many magnitude bins the FFT output is decimated to
// for the plot, the same "cut this down to a manageable size" step as
// the teacher's Demodulator.doFFT.
const spectrumBins = 128

// spectrum runs an FFT over the latest tapped sample block and returns
// dB-scale magnitude bins in frequency order, DC centered, ready for
// tvxwidgets.Plot.SetData.
func spectrum(samples []complex64) []float64 {
	if len(samples) < 2 {
		return nil
	}
	input := make([]complex128, len(samples))
	for i, s := range samples {
		input[i] = complex128(s)
	}
	fft := fourier.NewCmplxFFT(len(input))
	coeff := fft.Coefficients(nil, input)

	step := len(coeff) / spectrumBins
	if step < 1 {
		step = 1
	}
	var bins []float64
	for i := 0; i < len(coeff); i += step {
		shifted := fft.ShiftIdx(i)
		re, im := real(coeff[shifted]), imag(coeff[shifted])
		mag := re*re + im*im
		db := 10.0 * math.Log10(mag+1e-12)
		bins = append(bins, db)
	}
	return bins
}

// LogOut is the dashboard's embedded log pane, set as charmbracelet/log's
// output for the lifetime of the UI, same wiring the teacher used.
var LogOut *tview.TextView

// StartUI runs the dashboard until the user quits or the controller
// stops. direction is "rx" or "tx", used only for the window title.
func StartUI(source StatsSource, direction string, overrunThreshold int, conf config.TuiConf) {
	app := tview.NewApplication()

	LogOut = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)

	statusTable := tview.NewTable().SetSelectable(false, false).SetBorder(true).SetTitle("Status")

	bufferGauge := tvxwidgets.NewUtilModeGauge()
	bufferGauge.SetLabel("Sample buffer fill:          ")
	bufferGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	bufferGauge.SetWarnPercentage(conf.BufferWarnPct)
	bufferGauge.SetCritPercentage(conf.BufferCritPct)
	bufferGauge.SetEmptyColor(tcell.ColorBlack)
	bufferGauge.SetBorder(false)

	fecGauge := tvxwidgets.NewUtilModeGauge()
	fecGauge.SetLabel("FEC recovery rate:           ")
	fecGauge.SetLabelColor(tcell.ColorLightSkyBlue)
	fecGauge.SetWarnPercentage(conf.FECRecoveryWarnPct)
	fecGauge.SetCritPercentage(100)
	fecGauge.SetEmptyColor(tcell.ColorBlack)
	fecGauge.SetBorder(false)

	gaugeBox := tview.NewFlex().SetDirection(tview.FlexRow)
	gaugeBox.AddItem(bufferGauge, 0, 1, false)
	gaugeBox.AddItem(fecGauge, 0, 1, false)
	gaugeBox.SetTitle("Stream Health")
	gaugeBox.SetBorder(true)

	spectrumPlot := tvxwidgets.NewPlot()
	spectrumPlot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue})
	spectrumPlot.SetMarker(tvxwidgets.PlotMarkerBraille)
	spectrumPlot.SetBorder(true)
	spectrumPlot.SetTitle("Spectrum")

	LogOut.SetChangedFunc(func() {
		LogOut.ScrollToEnd()
		app.Draw()
	})
	LogOut.SetBorder(true).SetTitle("Log Output")
	log.SetOutput(LogOut)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(statusTable, 0, 1, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(gaugeBox, 0, 2, false)
	rightCol.AddItem(spectrumPlot, 0, 3, false)
	if conf.EnableLogOutput {
		rightCol.AddItem(LogOut, 0, 3, false)
	}

	page := tview.NewFlex().SetDirection(tview.FlexColumn)
	page.AddItem(leftCol, 0, 2, false)
	page.AddItem(rightCol, 0, 5, false)

	var lastProcessed, lastLost, lastRecovered uint64

	go func() {
		for {
			s := source.Stats()
			if s.State == controller.StateStopped {
				app.Stop()
				return
			}

			deltaRecovered := s.FramesRecovered - lastRecovered
			deltaLost := s.FramesLost - lastLost
			deltaProcessed := s.FramesProcessed - lastProcessed
			lastRecovered, lastLost, lastProcessed = s.FramesRecovered, s.FramesLost, s.FramesProcessed

			recoveryPct := 0.0
			if deltaProcessed > 0 {
				recoveryPct = (float64(deltaRecovered) / float64(deltaProcessed)) * 100
			}
			fillPct := 0.0
			if overrunThreshold > 0 {
				fillPct = (float64(s.QueuedSamples) / float64(overrunThreshold)) * 100
			}

			bufferGauge.SetValue(fillPct)
			fecGauge.SetValue(recoveryPct)

			if bins := spectrum(source.Samples()); len(bins) > 0 {
				spectrumPlot.SetData([][]float64{bins})
			}

			statusTable.SetCell(0, 0, tview.NewTableCell("Direction:"))
			statusTable.SetCell(0, 1, tview.NewTableCell(direction))
			statusTable.SetCell(1, 0, tview.NewTableCell("State:"))
			statusTable.SetCell(1, 1, tview.NewTableCell(s.State.String()))
			statusTable.SetCell(2, 0, tview.NewTableCell("Frames processed:"))
			statusTable.SetCell(2, 1, tview.NewTableCell(fmt.Sprintf("%d", s.FramesProcessed)))
			statusTable.SetCell(3, 0, tview.NewTableCell("Frames lost:"))
			statusTable.SetCell(3, 1, tview.NewTableCell(fmt.Sprintf("%d", s.FramesLost)).SetTextColor(lossColor(deltaLost)))
			statusTable.SetCell(4, 0, tview.NewTableCell("Frames recovered:"))
			statusTable.SetCell(4, 1, tview.NewTableCell(fmt.Sprintf("%d", s.FramesRecovered)))
			statusTable.SetCell(5, 0, tview.NewTableCell("Malformed datagrams:"))
			statusTable.SetCell(5, 1, tview.NewTableCell(fmt.Sprintf("%d", s.MalformedDatagrams)))
			statusTable.SetCell(6, 0, tview.NewTableCell("Queued samples:"))
			statusTable.SetCell(6, 1, tview.NewTableCell(fmt.Sprintf("%d", s.QueuedSamples)))

			app.Draw()
			time.Sleep(time.Duration(conf.RefreshMs) * time.Millisecond)
		}
	}()

	if err := app.SetRoot(page, true).EnableMouse(true).Run(); err != nil {
		log.Fatalf("Could not start UI: %v", err)
	}
}

func lossColor(deltaLost uint64) tcell.Color {
	if deltaLost > 0 {
		return tcell.ColorRed
	}
	return tcell.ColorGreen
}
