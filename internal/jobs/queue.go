// Package jobs runs relationship transitions in the background: a durable
// Badger queue, a worker pool that drains it, and the retry policy.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/tagyard/tagyard-server/internal/domain"
)

const (
	pendingPrefix  = "job:pending:"
	inflightPrefix = "job:inflight:"
)

// Job asks a worker to run a transition for one relationship.
type Job struct {
	ID             string            `json:"id"`
	RelationshipID string            `json:"relationship_id"`
	Transition     domain.Transition `json:"transition"`
	EnqueuedAt     time.Time         `json:"enqueued_at"`
	// Deliveries counts how many times the job has been claimed.
	Deliveries int `json:"deliveries"`
}

// Queue is a FIFO job queue persisted in Badger. Claimed jobs move to an
// inflight keyspace until acknowledged; Recover puts them back after a crash.
type Queue struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenQueue opens a queue at path, or an in-memory queue when path is empty.
func OpenQueue(path string, logger *slog.Logger) (*Queue, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts.SyncWrites = true
		opts.CompactL0OnClose = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger queue: %w", err)
	}
	return &Queue{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue appends job. IDs are UUIDv7 so key order is enqueue order.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if job.ID == "" {
		v7, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("job id: %w", err)
		}
		job.ID = v7.String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(pendingPrefix+job.ID), data)
	})
}

// Claim moves the oldest pending job to inflight and returns it.
// Returns nil when the queue is empty.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		job, err := q.claimOnce()
		if errors.Is(err, badger.ErrConflict) {
			// Another worker claimed the same head; try the next one.
			continue
		}
		return job, err
	}
}

func (q *Queue) claimOnce() (*Job, error) {
	var job *Job
	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}

		item := it.Item()
		key := item.KeyCopy(nil)
		var j Job
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &j)
		}); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}
		j.Deliveries++

		data, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := txn.Set([]byte(inflightPrefix+j.ID), data); err != nil {
			return err
		}
		job = &j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Ack removes a finished job.
func (q *Queue) Ack(_ context.Context, jobID string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(inflightPrefix + jobID))
	})
}

// Recover returns every inflight job to the pending keyspace, keeping its
// original position. Call once before workers start.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	recovered := 0
	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(inflightPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		type move struct {
			from []byte
			to   []byte
			val  []byte
		}
		var moves []move
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := item.KeyCopy(nil)
			jobID := string(key[len(inflightPrefix):])
			moves = append(moves, move{from: key, to: []byte(pendingPrefix + jobID), val: val})
		}
		for _, m := range moves {
			if err := txn.Delete(m.from); err != nil {
				return err
			}
			if err := txn.Set(m.to, m.val); err != nil {
				return err
			}
		}
		recovered = len(moves)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		q.logger.Info("recovered inflight jobs", slog.Int("count", recovered))
	}
	return recovered, nil
}

// Depth returns the number of pending and inflight jobs.
func (q *Queue) Depth(ctx context.Context) (pending, inflight int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	err = q.db.View(func(txn *badger.Txn) error {
		pending = countPrefix(txn, pendingPrefix)
		inflight = countPrefix(txn, inflightPrefix)
		return nil
	})
	return pending, inflight, err
}

func countPrefix(txn *badger.Txn, prefix string) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}
