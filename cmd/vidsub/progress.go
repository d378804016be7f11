package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"vidsub/internal/pipeline"
)

// progressObserver renders a run on the terminal: a progress bar when
// interactive, one line per state change otherwise.
type progressObserver struct {
	pipeline.NopObserver
	out      io.Writer
	bar      *progressbar.ProgressBar
	colorize bool
	last     pipeline.Status
}

func newProgressObserver(out io.Writer, interactive bool) *progressObserver {
	o := &progressObserver{out: out, colorize: interactive}
	if interactive {
		o.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Starting"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
		)
	}
	return o
}

func (o *progressObserver) StatusChanged(ev pipeline.StatusEvent) {
	if o.bar != nil {
		if ev.Status.Active() {
			o.bar.Describe(ev.Message)
		}
		return
	}
	if ev.Status == o.last || !ev.Status.Active() {
		return
	}
	o.last = ev.Status
	fmt.Fprintln(o.out, renderStatusLine(ev.Status.Label(), statusInfo, ev.Message, false))
}

func (o *progressObserver) ProgressChanged(ev pipeline.ProgressEvent) {
	if o.bar != nil {
		_ = o.bar.Set(ev.Progress.Percent)
	}
}

func (o *progressObserver) Finished(res pipeline.Result) {
	if o.bar == nil {
		return
	}
	if res.Status == pipeline.StatusCompleted {
		_ = o.bar.Finish()
		return
	}
	_ = o.bar.Exit()
	fmt.Fprintln(o.out)
}
