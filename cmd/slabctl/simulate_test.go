package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/modelstore/model"
)

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	// Drain concurrently so large outputs cannot fill the pipe.
	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.String()
	}()

	fnErr := fn()

	_ = w.Close()
	os.Stdout = origStdout
	return <-done, fnErr
}

// withGlobals sets output flags for the duration of a test.
func withGlobals(t *testing.T, asJSON, q bool) {
	t.Helper()
	oldJSON, oldQuiet := jsonOut, quiet
	jsonOut, quiet = asJSON, q
	t.Cleanup(func() { jsonOut, quiet = oldJSON, oldQuiet })
}

func smallOptions() simOptions {
	return simOptions{
		Objects:            50,
		Frames:             20,
		Churn:              0.1,
		Pieces:             4,
		Mutate:             0.3,
		Seed:               7,
		Persistent:         true,
		TransformsCapacity: 64,
		UniformsCapacity:   16,
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	a, err := simulate(context.Background(), smallOptions())
	require.NoError(t, err)
	b, err := simulate(context.Background(), smallOptions())
	require.NoError(t, err)

	require.Equal(t, a.Spawned, b.Spawned)
	require.Equal(t, a.Writes, b.Writes)
	require.Equal(t, a.UploadedRecords, b.UploadedRecords)
	require.Equal(t, a.Session.Transforms.Alloc.Reused, b.Session.Transforms.Alloc.Reused)
	require.NotEqual(t, a.Session.ID, b.Session.ID, "every run gets its own session")
}

func TestSimulate_Accounting(t *testing.T) {
	res, err := simulate(context.Background(), smallOptions())
	require.NoError(t, err)

	require.Equal(t, res.Spawned, res.Despawned, "every object is torn down")
	require.Equal(t, 50*20, res.Draws, "population is constant during frames")
	require.Zero(t, res.SkippedCycles)
	require.Positive(t, res.UploadedRecords)

	st := res.Session
	require.Zero(t, st.Transforms.Alloc.LiveSpans)
	require.Zero(t, st.Uniforms.Alloc.LiveSpans)
	require.Zero(t, st.Objects.Entries)
	require.Equal(t, res.Spawned, st.Objects.Creates)
	require.Positive(t, st.Transforms.Alloc.Reused, "churn reuses freed spans")
	require.Positive(t, st.TransformsUpload.Resizes, "small initial buffer grows")
}

func TestSimulate_NonPersistentFullCopies(t *testing.T) {
	opts := smallOptions()
	opts.Persistent = false
	res, err := simulate(context.Background(), opts)
	require.NoError(t, err)
	require.Positive(t, res.FullCopies)
}

func TestSimulate_BufferLimitSkipsCycles(t *testing.T) {
	opts := smallOptions()
	opts.MaxBufferBytes = 3 * 64 * model.TransformSize // Initial transforms ring only
	res, err := simulate(context.Background(), opts)
	require.NoError(t, err, "failed uploads are reported, not fatal")
	require.Positive(t, res.SkippedCycles)
	require.Contains(t, res.LastError, "too large")
}

func TestSimulate_InvalidOptions(t *testing.T) {
	for name, mutate := range map[string]func(*simOptions){
		"negative objects": func(o *simOptions) { o.Objects = -1 },
		"zero pieces":      func(o *simOptions) { o.Pieces = 0 },
		"churn above one":  func(o *simOptions) { o.Churn = 1.5 },
		"negative mutate":  func(o *simOptions) { o.Mutate = -0.1 },
	} {
		t.Run(name, func(t *testing.T) {
			opts := smallOptions()
			mutate(&opts)
			_, err := simulate(context.Background(), opts)
			require.Error(t, err)
		})
	}
}

func TestSimulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := simulate(ctx, smallOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunSimulate_TextOutput(t *testing.T) {
	withGlobals(t, false, false)

	opts := smallOptions()
	opts.Objects = 2000
	opts.Frames = 2
	opts.TransformsCapacity = 0
	opts.UniformsCapacity = 0

	out, err := captureOutput(t, func() error { return runSimulate(context.Background(), opts) })
	require.NoError(t, err)

	for _, want := range []string{"Simulation: 2,000 objects", "Transforms:", "Uniforms:", "Identity index:", "Uploads:"} {
		require.Contains(t, out, want)
	}
}

func TestRunSimulate_JSONOutput(t *testing.T) {
	withGlobals(t, true, false)

	out, err := captureOutput(t, func() error { return runSimulate(context.Background(), smallOptions()) })
	require.NoError(t, err)

	var res SimResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, 50, res.Options.Objects)
	require.Positive(t, res.Spawned)
	require.NotContains(t, out, "LastError")
}

func TestRunSimulate_Quiet(t *testing.T) {
	withGlobals(t, false, true)

	out, err := captureOutput(t, func() error { return runSimulate(context.Background(), smallOptions()) })
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(out))
}

func TestVersionCommand(t *testing.T) {
	withGlobals(t, false, false)
	out, err := captureOutput(t, func() error {
		versionCmd.Run(versionCmd, nil)
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, out, "slabctl dev")
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512 B", formatBytes(512))
	require.Equal(t, "1.5 KB", formatBytes(1536))
	require.Equal(t, "3.0 MB", formatBytes(3<<20))
}

func TestSchema_Stdout(t *testing.T) {
	withGlobals(t, false, false)

	out, err := captureOutput(t, func() error { return runSchema("") })
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Contains(t, out, "slabctl simulation result")
	require.Contains(t, out, "SkippedCycles")
}

func TestSchema_File(t *testing.T) {
	withGlobals(t, false, true)
	path := filepath.Join(t.TempDir(), "nested", "simresult.schema.json")

	require.NoError(t, runSchema(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, json.Valid(data))
	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file is renamed away")
}
