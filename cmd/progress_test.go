package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopProgressAlwaysKeepsGoing(t *testing.T) {
	require.True(t, NoopProgress.Update(0))
	require.True(t, NoopProgress.Update(1000))
}

func TestBarReporterRequestAbortStopsUpdate(t *testing.T) {
	r := NewBarReporter()
	r.Start(10)
	defer r.Finish()

	require.True(t, r.Update(1))
	r.RequestAbort()
	require.False(t, r.Update(2), "Update must return false once an abort was requested")
}
