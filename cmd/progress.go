package cmd

import (
	"github.com/cheggaaa/pb"
)

// ProgressReporter is the observer the driver calls at index
// boundaries (spec section 4.1's "only yield points"). Update returns
// false to request a cooperative abort; the driver treats that exactly
// like a clean exit at the last completed index.
type ProgressReporter interface {
	Start(total int64)
	Update(done int64) (keepGoing bool)
	Pause()
	Resume()
	Finish()
}

// noopProgress satisfies ProgressReporter for callers (and tests) that
// don't want a visible bar.
type noopProgress struct{}

func (noopProgress) Start(int64)       {}
func (noopProgress) Update(int64) bool { return true }
func (noopProgress) Pause()            {}
func (noopProgress) Resume()           {}
func (noopProgress) Finish()           {}

// NoopProgress is the zero-overhead ProgressReporter used when a run
// has nothing attached to a terminal.
var NoopProgress ProgressReporter = noopProgress{}

// barReporter renders progress to a terminal with cheggaaa/pb, the
// same progress-bar library the teacher's go.mod already carried.
type barReporter struct {
	bar     *pb.ProgressBar
	aborted bool
}

// NewBarReporter builds a terminal progress bar reporter. Abort
// requests are delivered by calling RequestAbort from whatever signal
// handler or UI the caller wires up; Update then starts returning
// false.
func NewBarReporter() *barReporter {
	return &barReporter{}
}

func (r *barReporter) Start(total int64) {
	r.bar = pb.New64(total)
	r.bar.ShowSpeed = true
	r.bar.ShowTimeLeft = true
	r.bar.SetUnits(pb.U_NO)
	r.bar.Start()
}

func (r *barReporter) Update(done int64) bool {
	if r.bar != nil {
		r.bar.Set64(done)
	}
	return !r.aborted
}

func (r *barReporter) Pause() {
	if r.bar != nil {
		r.bar.AlwaysUpdate = false
	}
}

func (r *barReporter) Resume() {
	if r.bar != nil {
		r.bar.AlwaysUpdate = true
	}
}

func (r *barReporter) Finish() {
	if r.bar != nil {
		r.bar.Finish()
	}
}

// RequestAbort marks the reporter so the next Update call returns
// false, letting the driver break out of its loop at the next index
// boundary.
func (r *barReporter) RequestAbort() {
	r.aborted = true
}
