// Package jobs wires library scans onto a background task queue,
// adapted from the teacher's internal/jobs.Queue: an asynq client,
// server, and mux, with deterministic task IDs used to deduplicate
// concurrent enqueue attempts for the same library.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TaskScanLibrary is the only task type this repository's domain
// needs: a full reconciliation scan of one library.
const TaskScanLibrary = "scan:library"

// Queue wraps an asynq client/server/mux/inspector quad, matching the
// teacher's Queue field set.
type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
	log       *logrus.Entry
}

// NewQueue connects to redisAddr and configures a single "scan" queue
// with modest concurrency — library scans are I/O-bound and mostly
// serialized by the catalog store anyway.
func NewQueue(redisAddr string) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			"scan": 1,
		},
	})
	return &Queue{
		client:    client,
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
		log:       logrus.WithField("component", "jobs"),
	}
}

// isTaskConflict reports whether err indicates a task ID already
// exists, via errors.Is against asynq's sentinels with a string
// fallback for versions that don't export one.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// EnqueueUnique enqueues taskType with a deterministic TaskID
// (EnqueueScan uses "scan:<library-path>") so a second scan request for the
// same library while one is already queued or running is a no-op
// rather than a duplicate job.
func (q *Queue) EnqueueUnique(taskType string, payload interface{}, uniqueID string, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	opts = append(opts, asynq.TaskID(uniqueID))
	task := asynq.NewTask(taskType, data, opts...)

	info, err := q.client.Enqueue(task)
	if err == nil {
		return info.ID, nil
	}
	if !isTaskConflict(err) {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	if delErr := q.inspector.DeleteTask("scan", uniqueID); delErr == nil {
		q.log.WithField("task_id", uniqueID).Debug("cleared stale completed task before re-enqueue")
		if info, err = q.client.Enqueue(task); err == nil {
			return info.ID, nil
		}
	}

	if isTaskConflict(err) {
		q.log.WithField("task_id", uniqueID).Info("scan already queued or running, skipping")
		return uniqueID, nil
	}
	return "", fmt.Errorf("enqueue: %w", err)
}

// RegisterHandler wires a handler for taskType on the worker mux.
func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.mux.Handle(taskType, handler)
}

// Start launches the asynq worker server's background processing and
// returns once it is running (asynq's Server.Start does not block);
// the workers keep running until Stop is called. ctx is not used.
func (q *Queue) Start(_ context.Context) error {
	q.log.Info("job worker starting")
	return q.server.Start(q.mux)
}

// Stop shuts down the worker server and closes the client/inspector.
func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}
