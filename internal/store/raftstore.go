package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/heysubinoy/safinadb/pkg/config"
	"github.com/heysubinoy/safinadb/pkg/kv"
)

// ErrNotLeader is returned when the local raft node cannot accept writes.
var ErrNotLeader = errors.New("raft node is not the leader")

// RaftCommand represents an insert/update/delete operation to be applied via Raft.
type RaftCommand struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"` // insert and update only
}

// applyResult is what Apply hands back through the ApplyFuture.
type applyResult struct {
	existed bool
	err     error
}

// RaftStore sequences every mutation through a single-node raft log before
// applying it to the Shared store. Log, snapshot and transport all live in
// memory: nothing touches disk or the network.
type RaftStore struct {
	shared       *Shared
	raft         *raft.Raft
	transport    *raft.InmemTransport
	logOut       *zapio.Writer
	applyTimeout time.Duration
}

var (
	_ kv.Store = (*RaftStore)(nil)
	_ raft.FSM = (*RaftStore)(nil)
)

// NewRaftStore starts and bootstraps a single-node raft cluster whose FSM is
// shared, and waits until the node has become leader.
func NewRaftStore(shared *Shared, cfg config.RaftConfig, logger *zap.Logger) (*RaftStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rs := &RaftStore{
		shared:       shared,
		applyTimeout: cfg.ApplyTimeout,
		logOut:       &zapio.Writer{Log: logger.Named("raft"), Level: zapcore.DebugLevel},
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(cfg.NodeID)
	conf.HeartbeatTimeout = cfg.HeartbeatTimeout
	conf.ElectionTimeout = cfg.ElectionTimeout
	conf.LeaderLeaseTimeout = cfg.LeaderLeaseTimeout
	conf.CommitTimeout = cfg.CommitTimeout
	conf.Logger = hclog.New(&hclog.LoggerOptions{
		Name:        "raft",
		Level:       hclog.Debug,
		Output:      rs.logOut,
		DisableTime: true,
	})

	addr, transport := raft.NewInmemTransport(raft.ServerAddress(cfg.NodeID))
	rs.transport = transport
	logs := raft.NewInmemStore()
	snaps := raft.NewInmemSnapshotStore()

	r, err := raft.NewRaft(conf, rs, logs, logs, snaps, transport)
	if err != nil {
		rs.closeAux()
		return nil, fmt.Errorf("failed to start raft: %w", err)
	}
	rs.raft = r

	boot := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: conf.LocalID, Address: addr}},
	})
	if err := boot.Error(); err != nil {
		_ = rs.Close()
		return nil, fmt.Errorf("failed to bootstrap raft: %w", err)
	}

	wait := 20 * cfg.ElectionTimeout
	if wait < time.Second {
		wait = time.Second
	}
	if err := rs.waitForLeader(wait); err != nil {
		_ = rs.Close()
		return nil, err
	}

	logger.Info("raft backend ready",
		zap.String("node_id", cfg.NodeID),
		zap.String("state", r.State().String()),
	)
	return rs, nil
}

// Raft returns the underlying raft.Raft pointer.
func (rs *RaftStore) Raft() *raft.Raft {
	return rs.raft
}

func (rs *RaftStore) waitForLeader(timeout time.Duration) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if rs.raft.State() == raft.Leader {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("%w: no leadership after %s", ErrNotLeader, timeout)
		}
	}
}

// Close shuts raft down and releases the in-memory transport.
func (rs *RaftStore) Close() error {
	var err error
	if rs.raft != nil {
		err = rs.raft.Shutdown().Error()
	}
	return errors.Join(err, rs.closeAux())
}

func (rs *RaftStore) closeAux() error {
	return errors.Join(rs.transport.Close(), rs.logOut.Close())
}

// Apply applies a Raft log entry to the local store.
func (rs *RaftStore) Apply(l *raft.Log) interface{} {
	var cmd RaftCommand
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return applyResult{err: fmt.Errorf("failed to decode raft command: %w", err)}
	}

	switch cmd.Op {
	case opInsert:
		return applyResult{err: rs.shared.Insert(cmd.Key, cmd.Value)}
	case opUpdate:
		return applyResult{err: rs.shared.Update(cmd.Key, cmd.Value)}
	case opDelete:
		existed, err := rs.shared.Delete(cmd.Key)
		return applyResult{existed: existed, err: err}
	default:
		return applyResult{err: fmt.Errorf("unknown raft command %q", cmd.Op)}
	}
}

// Snapshot captures every pair under the store lock.
func (rs *RaftStore) Snapshot() (raft.FSMSnapshot, error) {
	var pairs []kv.KV
	err := rs.shared.With(func(st *Store) error {
		pairs = make([]kv.KV, 0, st.Len())
		for _, key := range st.Keys() {
			pair, err := st.Get(key)
			if err != nil {
				return err
			}
			pairs = append(pairs, pair)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{pairs: pairs}, nil
}

// Restore replaces the store contents with a snapshot produced by Persist.
func (rs *RaftStore) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var pairs []kv.KV
	if err := json.NewDecoder(rc).Decode(&pairs); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return rs.shared.With(func(st *Store) error {
		for _, key := range st.Keys() {
			st.Delete(key)
		}
		for _, pair := range pairs {
			if err := st.Insert(pair.Key, pair.Value); err != nil {
				return fmt.Errorf("failed to restore snapshot: %w", err)
			}
		}
		return nil
	})
}

type fsmSnapshot struct {
	pairs []kv.KV
}

func (f *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(f.pairs); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (f *fsmSnapshot) Release() {}

func (rs *RaftStore) apply(cmd RaftCommand) (applyResult, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return applyResult{}, fmt.Errorf("failed to encode raft command: %w", err)
	}

	f := rs.raft.Apply(data, rs.applyTimeout)
	if err := f.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			return applyResult{}, fmt.Errorf("%w: %s", ErrNotLeader, cmd.Op)
		}
		return applyResult{}, fmt.Errorf("raft apply %s: %w", cmd.Op, err)
	}

	res, ok := f.Response().(applyResult)
	if !ok {
		return applyResult{}, fmt.Errorf("unexpected raft response %T", f.Response())
	}
	return res, nil
}

// Insert submits an insert command to Raft.
func (rs *RaftStore) Insert(key, value string) error {
	res, err := rs.apply(RaftCommand{Op: opInsert, Key: key, Value: value})
	if err != nil {
		return err
	}
	return res.err
}

// Update submits an update command to Raft.
func (rs *RaftStore) Update(key, value string) error {
	res, err := rs.apply(RaftCommand{Op: opUpdate, Key: key, Value: value})
	if err != nil {
		return err
	}
	return res.err
}

// Delete submits a delete command to Raft.
func (rs *RaftStore) Delete(key string) (bool, error) {
	res, err := rs.apply(RaftCommand{Op: opDelete, Key: key})
	if err != nil {
		return false, err
	}
	return res.existed, res.err
}

// Len returns the number of pairs in the local store.
func (rs *RaftStore) Len() int {
	return rs.shared.Len()
}

// Get reads directly from the local store.
func (rs *RaftStore) Get(key string) (kv.KV, error) {
	return rs.shared.Get(key)
}
