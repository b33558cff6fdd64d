package relay

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iib-desktop/internal/observability"
	"iib-desktop/internal/sidecar"
)

var lineFormat = regexp.MustCompile(`^(INFO|ERR) \[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] .*$`)

func feed(events ...sidecar.Event) <-chan sidecar.Event {
	ch := make(chan sidecar.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

type failingWriter struct{ calls int }

func (w *failingWriter) Write(_ []byte) (int, error) {
	w.calls++
	return 0, errors.New("disk full")
}

func TestRunPreservesOrderAndFormat(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local))
	var console, file bytes.Buffer

	r := New(Config{Console: &console, File: &file, Clock: clock})
	err := r.Run(feed(
		sidecar.Event{Stream: sidecar.Stdout, Line: "L1"},
		sidecar.Event{Stream: sidecar.Stderr, Line: "L2"},
		sidecar.Event{Stream: sidecar.Stdout, Line: "L3"},
		sidecar.Event{Stream: sidecar.Terminated},
	))
	require.NoError(t, err)

	want := "INFO [2024-03-09 14:05:07] L1\n" +
		"ERR [2024-03-09 14:05:07] L2\n" +
		"INFO [2024-03-09 14:05:07] L3\n"
	assert.Equal(t, want, file.String())
	assert.Equal(t, want, console.String())
}

// signalingWriter reports every completed write on wrote.
type signalingWriter struct {
	buf   bytes.Buffer
	wrote chan struct{}
}

func (w *signalingWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.wrote <- struct{}{}
	return n, err
}

func (w *signalingWriter) String() string {
	return w.buf.String()
}

func TestRunUsesCurrentClockPerLine(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 9, 23, 59, 59, 0, time.Local))
	events := make(chan sidecar.Event)
	file := &signalingWriter{wrote: make(chan struct{}, 2)}

	r := New(Config{File: file, Clock: clock})
	done := make(chan error, 1)
	go func() { done <- r.Run(events) }()

	events <- sidecar.Event{Stream: sidecar.Stdout, Line: "before"}
	// The line is stamped before it is written, so the clock may move now.
	select {
	case <-file.wrote:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "first line was not written")
	}
	clock.Advance(2 * time.Second)
	events <- sidecar.Event{Stream: sidecar.Stdout, Line: "after"}
	close(events)
	require.NoError(t, <-done)

	assert.Equal(t,
		"INFO [2024-03-09 23:59:59] before\nINFO [2024-03-10 00:00:01] after\n",
		file.String())
}

func TestRunFileWriteFailureStopsRelay(t *testing.T) {
	var console bytes.Buffer
	fw := &failingWriter{}

	events := feed(
		sidecar.Event{Stream: sidecar.Stdout, Line: "first"},
		sidecar.Event{Stream: sidecar.Stdout, Line: "second"},
	)

	err := New(Config{Console: &console, File: fw}).Run(events)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLogFile)

	// The console write happens before the failing file write.
	assert.Contains(t, console.String(), "first")
	assert.NotContains(t, console.String(), "second")
	assert.Equal(t, 1, fw.calls)

	Drain(events)
	_, open := <-events
	assert.False(t, open)
}

func TestRunWithoutFileSink(t *testing.T) {
	var console bytes.Buffer
	err := New(Config{Console: &console}).Run(feed(sidecar.Event{Stream: sidecar.Stderr, Line: "only console"}))
	require.NoError(t, err)
	assert.Regexp(t, lineFormat, strings.TrimSuffix(console.String(), "\n"))
}

func TestRunCountsLinesAndMarksSidecarDown(t *testing.T) {
	m := observability.NewMetrics(nil)
	m.SetSidecarUp(true)

	err := New(Config{Metrics: m}).Run(feed(
		sidecar.Event{Stream: sidecar.Stdout, Line: "a"},
		sidecar.Event{Stream: sidecar.Stderr, Line: "b"},
		sidecar.Event{Stream: sidecar.Terminated, ExitCode: 1},
	))
	require.NoError(t, err)

	expected := `
# HELP iib_sidecar_up Whether the sidecar process is running
# TYPE iib_sidecar_up gauge
iib_sidecar_up 0
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "iib_sidecar_up"))
}

func TestTag(t *testing.T) {
	assert.Equal(t, "INFO", Tag(sidecar.Stdout))
	assert.Equal(t, "ERR", Tag(sidecar.Stderr))
}

func TestOpenLogFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "iib_api_server.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0644))

	f, err := OpenLogFile(path, 0)
	require.NoError(t, err)
	_, ok := f.(*os.File)
	assert.True(t, ok)

	r := New(Config{File: f})
	require.NoError(t, r.Run(feed(sidecar.Event{Stream: sidecar.Stdout, Line: "new"})))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "existing", lines[0])
	assert.Regexp(t, lineFormat, lines[1])
}

func TestOpenLogFileCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "iib_api_server.log")

	f, err := OpenLogFile(path, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.FileExists(t, path)
}

func TestOpenLogFileEmptyPathDisablesSink(t *testing.T) {
	f, err := OpenLogFile("", 0)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestOpenLogFileRotating(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iib_api_server.log")

	f, err := OpenLogFile(path, 1)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("rotated line\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rotated line\n", string(data))
}

func TestOpenLogFileFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be opened for writing.
	_, err := OpenLogFile(dir, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLogFile)
}
