// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package queue implements the deferred path-rebuild pipeline on Valkey.
// Reparents enqueue a task; a single worker consumes the list in FIFO order,
// which is what guarantees rebuilds of the same node apply in the order the
// reparents were issued. Delivery is at-least-once: tasks carry a per-node
// monotonic sequence so duplicates and superseded deliveries are dropped,
// and the rebuild itself is idempotent.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// tasksKey is the Valkey list holding pending rebuild tasks.
	tasksKey = "rebuild:tasks"

	// seqKeyPrefix namespaces the per-category enqueue sequence counters.
	seqKeyPrefix = "rebuild:seq:"

	// appliedKeyPrefix namespaces the per-category last-applied sequence.
	appliedKeyPrefix = "rebuild:applied:"
)

// Task is one queued path rebuild. ID, CategoryID and Seq together form the
// idempotency key: a task whose Seq is not newer than the last applied
// sequence for its category is stale and must be dropped.
type Task struct {
	ID          string `json:"id"`
	CategoryID  int64  `json:"category_id"`
	NewParentID *int64 `json:"new_parent_id"`
	Seq         int64  `json:"seq"`
}

// Queue enqueues rebuild tasks into Valkey.
type Queue struct {
	client *redis.Client
}

// New returns a Queue backed by the given Valkey client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// EnqueueRebuild schedules a path rebuild for categoryID moving under
// newParentID (nil for root). The per-category sequence is taken atomically
// with INCR, so concurrent reparents of the same node get distinct, ordered
// sequence numbers.
func (q *Queue) EnqueueRebuild(ctx context.Context, categoryID int64, newParentID *int64) error {
	seq, err := q.client.Incr(ctx, seqKey(categoryID)).Result()
	if err != nil {
		return fmt.Errorf("enqueue rebuild: next seq: %w", err)
	}

	task := Task{
		ID:          uuid.NewString(),
		CategoryID:  categoryID,
		NewParentID: newParentID,
		Seq:         seq,
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("enqueue rebuild: marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, tasksKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue rebuild: push task: %w", err)
	}

	slog.Info("rebuild task enqueued",
		"task_id", task.ID,
		"category_id", categoryID,
		"seq", seq,
	)
	return nil
}

// Pending returns the number of queued rebuild tasks.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, tasksKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// appliedSeq returns the last applied sequence for a category, zero when no
// rebuild has applied yet.
func (q *Queue) appliedSeq(ctx context.Context, categoryID int64) (int64, error) {
	val, err := q.client.Get(ctx, appliedKey(categoryID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read applied seq: %w", err)
	}
	seq, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse applied seq %q: %w", val, err)
	}
	return seq, nil
}

// markApplied records seq as applied for a category.
func (q *Queue) markApplied(ctx context.Context, categoryID, seq int64) error {
	if err := q.client.Set(ctx, appliedKey(categoryID), seq, 0).Err(); err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	return nil
}

func seqKey(categoryID int64) string {
	return seqKeyPrefix + strconv.FormatInt(categoryID, 10)
}

func appliedKey(categoryID int64) string {
	return appliedKeyPrefix + strconv.FormatInt(categoryID, 10)
}
