package pipeline

import "time"

// StatusEvent announces a state transition.
type StatusEvent struct {
	RunID   string    `json:"run_id"`
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ProgressEvent announces a progress change.
type ProgressEvent struct {
	RunID    string   `json:"run_id"`
	Stage    Status   `json:"stage"`
	Progress Progress `json:"progress"`
}

// OutputEvent carries raw tool output, as text, for log panes.
type OutputEvent struct {
	RunID  string `json:"run_id"`
	Stage  Status `json:"stage"`
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

// Observer receives run notifications. All calls for a run arrive from the
// controller's run goroutine, one at a time, in order. Implementations must
// not block for long and must not call back into the controller.
type Observer interface {
	StatusChanged(StatusEvent)
	ProgressChanged(ProgressEvent)
	Output(OutputEvent)
	Finished(Result)
}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) StatusChanged(ev StatusEvent) {
	for _, o := range m {
		if o != nil {
			o.StatusChanged(ev)
		}
	}
}

func (m MultiObserver) ProgressChanged(ev ProgressEvent) {
	for _, o := range m {
		if o != nil {
			o.ProgressChanged(ev)
		}
	}
}

func (m MultiObserver) Output(ev OutputEvent) {
	for _, o := range m {
		if o != nil {
			o.Output(ev)
		}
	}
}

func (m MultiObserver) Finished(res Result) {
	for _, o := range m {
		if o != nil {
			o.Finished(res)
		}
	}
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) StatusChanged(StatusEvent)     {}
func (NopObserver) ProgressChanged(ProgressEvent) {}
func (NopObserver) Output(OutputEvent)            {}
func (NopObserver) Finished(Result)               {}
