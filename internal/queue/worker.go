// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"taxo/internal/cache"
	"taxo/internal/store"
)

// Rebuilder applies one path rebuild. Satisfied by *store.PathRebuilder.
type Rebuilder interface {
	Rebuild(categoryID int64, newParentID *int64) error
}

// Worker consumes rebuild tasks one at a time. Exactly one Worker runs per
// deployment: single consumption is what keeps rebuilds FIFO per node, so
// do not scale this horizontally without adding per-node partitioning.
type Worker struct {
	queue     *Queue
	rebuilder Rebuilder
	tree      *cache.TreeCache // may be nil

	popTimeout time.Duration
}

// NewWorker returns a Worker consuming from q and applying rebuilds with r.
// tree, when non-nil, is invalidated after every applied rebuild.
func NewWorker(q *Queue, r Rebuilder, tree *cache.TreeCache) *Worker {
	return &Worker{
		queue:      q,
		rebuilder:  r,
		tree:       tree,
		popTimeout: 5 * time.Second,
	}
}

// Run blocks consuming tasks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("rebuild worker started")
	for {
		res, err := w.queue.client.BRPop(ctx, w.popTimeout, tasksKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("rebuild worker stopped")
				return
			}
			slog.Error("rebuild worker pop failed", "error", err)
			// Back off briefly so a dead Valkey doesn't spin the loop.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				slog.Info("rebuild worker stopped")
				return
			}
			continue
		}

		// BRPop returns [key, value].
		if len(res) == 2 {
			w.process(ctx, []byte(res[1]))
		}
	}
}

// process applies one raw task: drop if stale, rebuild with retries on
// persistence failures, then record the applied sequence.
func (w *Worker) process(ctx context.Context, raw []byte) {
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		slog.Error("rebuild worker: undecodable task dropped", "error", err, "raw", string(raw))
		return
	}

	applied, err := w.queue.appliedSeq(ctx, task.CategoryID)
	if err != nil {
		slog.Error("rebuild worker: cannot read applied seq", "task_id", task.ID, "error", err)
		// Proceed anyway; the rebuild itself is idempotent.
	} else if task.Seq <= applied {
		slog.Info("rebuild task superseded, dropping",
			"task_id", task.ID,
			"category_id", task.CategoryID,
			"seq", task.Seq,
			"applied", applied,
		)
		return
	}

	// Persistence failures are transient — retry with exponential backoff.
	// A vanished target is permanent: drop the task, never retry.
	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := w.rebuilder.Rebuild(task.CategoryID, task.NewParentID); err != nil {
			if errors.Is(err, store.ErrRebuildTargetMissing) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})

	switch {
	case errors.Is(err, store.ErrRebuildTargetMissing):
		slog.Warn("rebuild task target gone, dropping",
			"task_id", task.ID,
			"category_id", task.CategoryID,
		)
		return
	case err != nil:
		// Retries exhausted. The tree stays at its last consistent state:
		// the rewrite is transactional, so nothing partial was committed.
		slog.Error("rebuild task failed permanently",
			"task_id", task.ID,
			"category_id", task.CategoryID,
			"seq", task.Seq,
			"error", err,
		)
		return
	}

	if err := w.queue.markApplied(ctx, task.CategoryID, task.Seq); err != nil {
		slog.Warn("rebuild applied but seq not recorded", "task_id", task.ID, "error", err)
	}
	if w.tree != nil {
		w.tree.Invalidate(ctx)
	}
	slog.Info("rebuild task applied",
		"task_id", task.ID,
		"category_id", task.CategoryID,
		"seq", task.Seq,
	)
}
