package main

import (
	"fmt"
	"os"

	"github.com/puntozap/ZEMPERvideos-sub000/internal/workflow"
	"github.com/schollz/progressbar/v3"
)

const barSteps = 1000

// progressView draws a bar on stderr and prints log lines above it
type progressView struct {
	bar *progressbar.ProgressBar
}

func newProgress(desc string) *progressView {
	bar := progressbar.NewOptions(barSteps,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &progressView{bar: bar}
}

func (p *progressView) events() workflow.Events {
	return workflow.Events{
		Log:      p.log,
		Progress: p.set,
	}
}

func (p *progressView) log(line string) {
	_ = p.bar.Clear()
	fmt.Fprintln(os.Stderr, line)
	_ = p.bar.RenderBlank()
}

// set takes a fraction in 0..1
func (p *progressView) set(f float64) {
	_ = p.bar.Set(int(f * barSteps))
}

// percent adapts the 0..100 callbacks of the downloader
func (p *progressView) percent(pct float64) {
	p.set(pct / 100)
}

func (p *progressView) finish() {
	_ = p.bar.Finish()
	fmt.Fprintln(os.Stderr)
}
