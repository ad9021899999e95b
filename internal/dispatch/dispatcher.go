package dispatch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/heysubinoy/safinadb/internal/store"
	"github.com/heysubinoy/safinadb/pkg/kv"
)

// maxLineSize bounds a single input line.
const maxLineSize = 1 << 20

// State is the position of the command loop.
type State int32

const (
	// StateReading means the loop is blocked on the next input line.
	StateReading State = iota
	// StateExecuting means one dispatch-and-respond cycle is running.
	StateExecuting
	// StateTerminated means the loop has returned.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReading:
		return "reading"
	case StateExecuting:
		return "executing"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// StatsSource is implemented by stores that can report operation metrics.
type StatsSource interface {
	GetMetrics() store.MetricsSnapshot
}

// Dispatcher turns text commands into kv.Store calls and renders each result
// as a single line.
type Dispatcher struct {
	store  kv.Store
	prompt string
	logger *zap.Logger
	state  atomic.Int32
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPrompt sets the text written before each read. Empty disables it.
func WithPrompt(prompt string) Option {
	return func(d *Dispatcher) {
		d.prompt = prompt
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// New creates a Dispatcher bound to store.
func New(store kv.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current loop state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

// Run reads one command per line from in and writes one response line per
// command to out, until "exit" or end of input. Parse and store failures,
// including lines longer than maxLineSize, are reported to out and do not
// stop the loop.
func (d *Dispatcher) Run(in io.Reader, out io.Writer) error {
	defer d.setState(StateTerminated)

	reader := bufio.NewReaderSize(in, 4096)

	for {
		d.setState(StateReading)
		if d.prompt != "" {
			if _, err := io.WriteString(out, d.prompt); err != nil {
				return fmt.Errorf("failed to write prompt: %w", err)
			}
		}

		line, err := readLine(reader)
		if errors.Is(err, io.EOF) {
			break
		}

		d.setState(StateExecuting)
		var (
			resp string
			exit bool
		)
		switch {
		case errors.Is(err, ErrParse):
			d.logger.Debug("parse failure", zap.Error(err))
			resp = "error: " + err.Error()
		case err != nil:
			return fmt.Errorf("failed to read command: %w", err)
		default:
			resp, exit = d.handleLine(line)
		}

		if resp != "" {
			if _, err := fmt.Fprintln(out, resp); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}
		if exit {
			d.logger.Debug("exit requested")
			return nil
		}
	}

	d.logger.Debug("end of input")
	return nil
}

// readLine returns the next line without its terminator. A line longer than
// maxLineSize is consumed up to its newline and reported as an ErrParse.
func readLine(r *bufio.Reader) (string, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		if !tooLong {
			if len(buf)+len(chunk) > maxLineSize {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			break
		}
	}

	if tooLong {
		return "", fmt.Errorf("%w: line exceeds %d bytes", ErrParse, maxLineSize)
	}
	return string(buf), nil
}

func (d *Dispatcher) handleLine(line string) (string, bool) {
	cmd, err := Parse(line)
	if err != nil {
		d.logger.Debug("parse failure", zap.String("line", line), zap.Error(err))
		return "error: " + err.Error(), false
	}
	return d.Execute(cmd)
}

// Execute runs one parsed command and renders its response. The bool is true
// when the command asks the loop to terminate.
func (d *Dispatcher) Execute(cmd Command) (string, bool) {
	switch cmd.Verb {
	case "":
		return "", false

	case VerbExit:
		return "", true

	case VerbHelp:
		return usage(), false

	case VerbStats:
		src, ok := d.store.(StatsSource)
		if !ok {
			return "error: stats unavailable", false
		}
		return renderStats(src.GetMetrics()), false

	case VerbInsert:
		key := cmd.Args[0]
		if err := d.store.Insert(key, cmd.Args[1]); err != nil {
			return renderError(key, err), false
		}
		return "OK", false

	case VerbGet:
		key := cmd.Args[0]
		pair, err := d.store.Get(key)
		if err != nil {
			return renderError(key, err), false
		}
		return pair.Value, false

	case VerbUpdate:
		key := cmd.Args[0]
		if err := d.store.Update(key, cmd.Args[1]); err != nil {
			return renderError(key, err), false
		}
		return "OK", false

	case VerbDelete:
		key := cmd.Args[0]
		if _, err := d.store.Delete(key); err != nil {
			return renderError(key, err), false
		}
		return "OK", false

	default:
		return fmt.Sprintf("error: unknown command %q", cmd.Verb), false
	}
}

// renderError formats a store failure. Infrastructure errors are logged by
// InstrumentedStore, not here.
func renderError(key string, err error) string {
	switch {
	case errors.Is(err, kv.ErrKeyNotFound):
		return fmt.Sprintf("error: key %q not found", key)
	case errors.Is(err, kv.ErrKeyAlreadyExists):
		return fmt.Sprintf("error: key %q already exists", key)
	default:
		return "error: " + err.Error()
	}
}

func renderStats(m store.MetricsSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "keys=%d", m.Keys)
	for _, op := range []struct {
		name  string
		stats store.OpStats
	}{
		{VerbInsert, m.Insert},
		{VerbGet, m.Get},
		{VerbUpdate, m.Update},
		{VerbDelete, m.Delete},
	} {
		fmt.Fprintf(&b, " %s=%d/%d/%s", op.name, op.stats.Count, op.stats.Failures, op.stats.AvgLatency)
	}
	return b.String()
}
