package cmd

// Options carries the per-run toggles named in spec section 6. Zero
// value is the conservative default: nothing skipped, no inverted
// return policy.
type Options struct {
	// SkipSelf disables the buffer self-test normally run once at
	// setup (write a known pattern to every data and parity buffer,
	// read it back, verify it round-trips) before any real disk I/O
	// begins.
	SkipSelf bool

	// SkipSequential disables the sequential-access hint passed to the
	// OS when opening data-disk handles.
	SkipSequential bool

	// SkipFallocate disables preallocating parity files with
	// unix.Fallocate, falling back to a plain truncate-to-size.
	SkipFallocate bool

	// ExpectRecoverable inverts the run's exit policy: a run succeeds
	// only if it hit at least one external-modification or silent-data
	// error (kinds the driver otherwise tolerates), and a clean run is
	// reported as a failure.
	ExpectRecoverable bool

	// AutosaveBytes is the approximate number of data bytes read
	// between automatic state snapshots. Zero disables autosave; the
	// state is written once at the end of the run.
	AutosaveBytes int64
}
