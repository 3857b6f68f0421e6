package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rzbill/berth/pkg/log"
	"github.com/rzbill/berth/pkg/types"
)

// Validate that BadgerStore implements the Store interface
var _ Store = &BadgerStore{}

// BadgerStore implements the Store interface using BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger log.Logger
}

// NewBadgerStore opens a BadgerDB-backed state store at path.
func NewBadgerStore(path string, logger log.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("state-store")
	} else {
		logger = logger.WithComponent("state-store")
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogAdapter{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, types.NewPersistenceError("open", path, err)
	}

	logger.Debug("State store opened", log.Str("path", path))

	return &BadgerStore{
		db:     db,
		path:   path,
		logger: logger,
	}, nil
}

// Close closes the BadgerDB database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func appliedKey(service string) []byte {
	return []byte("applied/" + service)
}

func runKey(report *types.DeployReport) []byte {
	// RFC3339Nano sorts lexically within a given year range, so reverse
	// iteration yields the newest run first.
	return []byte(fmt.Sprintf("run/%s/%s", report.StartedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"), report.RunID))
}

// GetApplied returns a service's last-applied spec record, if any.
func (s *BadgerStore) GetApplied(ctx context.Context, service string) (*AppliedSpec, bool, error) {
	var rec AppliedSpec
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(appliedKey(service))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, false, types.NewPersistenceError("get", s.path, err)
	}
	if !found {
		return nil, false, nil
	}
	return &rec, true, nil
}

// PutApplied records a service's applied spec fingerprint.
func (s *BadgerStore) PutApplied(ctx context.Context, rec *AppliedSpec) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal applied spec: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(appliedKey(rec.Service), data)
	})
	if err != nil {
		return types.NewPersistenceError("put", s.path, err)
	}
	return nil
}

// AppendRun appends a deploy run record to the history.
func (s *BadgerStore) AppendRun(ctx context.Context, report *types.DeployReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal deploy report: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(report), data)
	})
	if err != nil {
		return types.NewPersistenceError("append", s.path, err)
	}
	return nil
}

// LastRun returns the most recent deploy run record, if any.
func (s *BadgerStore) LastRun(ctx context.Context) (*types.DeployReport, bool, error) {
	var report types.DeployReport
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte("run/")
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the end of the run/ keyspace, then the first item in
		// reverse order is the newest run.
		it.Seek([]byte("run/\xff"))
		if !it.ValidForPrefix([]byte("run/")) {
			return nil
		}
		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		return nil, false, types.NewPersistenceError("scan", s.path, err)
	}
	if !found {
		return nil, false, nil
	}
	return &report, true, nil
}

// badgerLogAdapter adapts our logger to BadgerDB's logger interface.
type badgerLogAdapter struct {
	logger log.Logger
}

// Errorf implements badger.Logger.
func (l *badgerLogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Warningf implements badger.Logger.
func (l *badgerLogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Infof implements badger.Logger.
func (l *badgerLogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug("BadgerDB: " + fmt.Sprintf(format, args...))
}

// Debugf implements badger.Logger.
func (l *badgerLogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug("BadgerDB: " + fmt.Sprintf(format, args...))
}
