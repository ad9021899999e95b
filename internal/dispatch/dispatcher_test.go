package dispatch

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/heysubinoy/safinadb/internal/store"
	"github.com/heysubinoy/safinadb/pkg/kv"
	"github.com/heysubinoy/safinadb/pkg/metrics"
)

// TestMain ensures no goroutines leak from the command loop.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func runScript(t *testing.T, d *Dispatcher, lines ...string) []string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, d.Run(strings.NewReader(strings.Join(lines, "\n")+"\n"), &out))
	assert.Equal(t, StateTerminated, d.State())

	got := strings.TrimSuffix(out.String(), "\n")
	if got == "" {
		return nil
	}
	return strings.Split(got, "\n")
}

func TestRunScenario(t *testing.T) {
	d := New(store.NewShared())

	got := runScript(t, d,
		"insert a 1",
		"insert a 2",
		"get a",
		"update a 2",
		"get a",
		"delete a",
		"get a",
		"exit",
	)
	assert.Equal(t, []string{
		"OK",
		`error: key "a" already exists`,
		"1",
		"OK",
		"2",
		"OK",
		`error: key "a" not found`,
	}, got)
}

func TestRunDeleteAbsentKeySucceeds(t *testing.T) {
	d := New(store.NewShared())
	got := runScript(t, d, "delete ghost", "delete ghost")
	assert.Equal(t, []string{"OK", "OK"}, got)
}

func TestRunUpdateMissingKey(t *testing.T) {
	d := New(store.NewShared())
	got := runScript(t, d, "update ghost v")
	assert.Equal(t, []string{`error: key "ghost" not found`}, got)
}

func TestRunStopsAtExit(t *testing.T) {
	shared := store.NewShared()
	d := New(shared)

	got := runScript(t, d, "insert a 1", "EXIT", "insert b 2")
	assert.Equal(t, []string{"OK"}, got)

	_, err := shared.Get("b")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestRunEndOfInputTerminates(t *testing.T) {
	d := New(store.NewShared())
	var out bytes.Buffer
	require.NoError(t, d.Run(strings.NewReader("insert a 1"), &out))
	assert.Equal(t, "OK\n", out.String())
	assert.Equal(t, StateTerminated, d.State())
}

func TestRunParseFailuresContinue(t *testing.T) {
	shared := store.NewShared()
	d := New(shared)

	got := runScript(t, d,
		"insert onlykey",
		"frobnicate x",
		"",
		"   ",
		"get",
		"insert a 1",
	)
	require.Len(t, got, 4)
	assert.Equal(t, "error: could not parse command: usage: insert <key> <value>", got[0])
	assert.Equal(t, `error: could not parse command: unknown command "frobnicate" (try "help")`, got[1])
	assert.Equal(t, "error: could not parse command: usage: get <key>", got[2])
	assert.Equal(t, "OK", got[3])
	assert.Equal(t, 1, shared.Len())
}

func TestRunWritesPrompt(t *testing.T) {
	d := New(store.NewShared(), WithPrompt("> "))
	var out bytes.Buffer
	require.NoError(t, d.Run(strings.NewReader("insert a 1\nexit\n"), &out))
	assert.Equal(t, "> OK\n> ", out.String())
}

func TestRunHelp(t *testing.T) {
	d := New(store.NewShared())
	got := runScript(t, d, "help")
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "commands: insert <key> <value>"))
}

func TestRunStats(t *testing.T) {
	instrumented := store.NewInstrumentedStore(store.NewShared(), metrics.New(prometheus.NewRegistry()), nil)
	d := New(instrumented)

	got := runScript(t, d, "insert a 1", "insert a 1", "get a", "stats")
	require.Len(t, got, 4)
	assert.True(t, strings.HasPrefix(got[3], "keys=1 insert=2/1/"), got[3])
	assert.Contains(t, got[3], " get=1/0/")
	assert.Contains(t, got[3], " delete=0/0/0s")
}

func TestRunStatsUnavailable(t *testing.T) {
	d := New(store.NewShared())
	got := runScript(t, d, "stats")
	assert.Equal(t, []string{"error: stats unavailable"}, got)
}

type brokenStore struct {
	kv.Store
}

func (brokenStore) Delete(string) (bool, error) { return false, errors.New("raft apply delete: timed out") }

func TestRunInfrastructureErrorContinues(t *testing.T) {
	d := New(brokenStore{Store: store.NewShared()})
	got := runScript(t, d, "delete a", "insert a 1")
	assert.Equal(t, []string{"error: raft apply delete: timed out", "OK"}, got)
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestRunWriteFailure(t *testing.T) {
	d := New(store.NewShared())
	err := d.Run(strings.NewReader("insert a 1\n"), errWriter{})
	assert.ErrorContains(t, err, "closed pipe")
	assert.Equal(t, StateTerminated, d.State())
}

func TestRunOverlongLineContinues(t *testing.T) {
	shared := store.NewShared()
	d := New(shared)

	input := "insert big " + strings.Repeat("x", 2*maxLineSize) + "\ninsert a 1\nget a\n"
	var out bytes.Buffer
	require.NoError(t, d.Run(strings.NewReader(input), &out))

	assert.Equal(t, fmt.Sprintf("error: could not parse command: line exceeds %d bytes\nOK\n1\n", maxLineSize), out.String())
	_, err := shared.Get("big")
	assert.ErrorIs(t, err, kv.ErrKeyNotFound)
}

func TestRunLineAtLimit(t *testing.T) {
	d := New(store.NewShared())

	value := strings.Repeat("v", maxLineSize-len("insert k "))
	got := runScript(t, d, "insert k "+value, "get k")
	require.Len(t, got, 2)
	assert.Equal(t, "OK", got[0])
	assert.Equal(t, value, got[1])
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("tty gone") }

func TestRunReadFailure(t *testing.T) {
	d := New(store.NewShared())
	err := d.Run(errReader{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to read command: tty gone")
	assert.Equal(t, StateTerminated, d.State())
}

func TestRunInfrastructureErrorLoggedOnce(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	instrumented := store.NewInstrumentedStore(
		brokenStore{Store: store.NewShared()},
		metrics.New(prometheus.NewRegistry()),
		logger,
	)
	d := New(instrumented, WithLogger(logger))

	got := runScript(t, d, "delete a")
	assert.Equal(t, []string{"error: raft apply delete: timed out"}, got)

	assert.Equal(t, 1, logs.Filter(func(e observer.LoggedEntry) bool {
		return e.Level >= zap.WarnLevel
	}).Len())
}

func TestExecuteEmptyCommand(t *testing.T) {
	d := New(store.NewShared())
	resp, exit := d.Execute(Command{})
	assert.Empty(t, resp)
	assert.False(t, exit)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "reading", StateReading.String())
	assert.Equal(t, "executing", StateExecuting.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "State(9)", State(9).String())
}
