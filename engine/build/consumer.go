package build

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/beaconrag/beacon/engine/domain"
	"github.com/beaconrag/beacon/pkg/natsutil"
)

// buildMessage is the payload published to IngestSubject.
type buildMessage struct {
	Engine  domain.QueryEngine `json:"engine"`
	Job     domain.BuildJob    `json:"job"`
	Retries int                `json:"retries"`
}

// dlqMessage is published to DLQSubject after MaxRetries exhausted attempts.
type dlqMessage struct {
	Message buildMessage `json:"message"`
	Error   string       `json:"error"`
}

// EnqueueBuild publishes a BuildJob for asynchronous processing.
func EnqueueBuild(ctx context.Context, nc *nats.Conn, engine domain.QueryEngine, job domain.BuildJob) error {
	return natsutil.Publish(ctx, nc, IngestSubject, buildMessage{Engine: engine, Job: job})
}

// StartConsumer subscribes to IngestSubject and runs each BuildRequest
// through the Coordinator, attempting each build up to MaxRetries times in
// total before routing it to the DLQ, mirroring the teacher's ingest consumer.
func (c *Coordinator) StartConsumer(nc *nats.Conn) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, IngestSubject, func(ctx context.Context, msg buildMessage) {
		engine := msg.Engine
		job := msg.Job

		err := c.Run(ctx, &engine, &job)
		if err == nil && job.Status == domain.JobSucceeded {
			c.log.Info("build: succeeded", "engine_id", engine.ID, "job_id", job.ID, "chunks", job.ChunksTotal)
			engine.Empty = job.ChunksTotal == 0
			if transErr := domain.TransitionEngine(&engine, domain.EngineReady); transErr != nil {
				c.log.Error("build: engine transition to READY failed", "engine_id", engine.ID, "error", transErr)
			} else if c.deps.SaveEngine != nil {
				_ = c.deps.SaveEngine(ctx, engine)
			}
			if c.deps.SaveJob != nil {
				_ = c.deps.SaveJob(ctx, job)
			}
			return
		}

		msg.Retries++
		c.log.Error("build: failed", "engine_id", engine.ID, "job_id", job.ID, "retry", msg.Retries, "error", err)

		if job.Status == domain.JobFailed {
			if transErr := domain.TransitionEngine(&engine, domain.EngineFailed); transErr == nil && c.deps.SaveEngine != nil {
				_ = c.deps.SaveEngine(ctx, engine)
			}
		}

		if c.deps.SaveJob != nil {
			_ = c.deps.SaveJob(ctx, job)
		}

		if msg.Retries >= MaxRetries {
			dlq := dlqMessage{Message: msg, Error: fmt.Sprint(err)}
			if pubErr := natsutil.Publish(ctx, nc, DLQSubject, dlq); pubErr != nil {
				c.log.Error("build: dlq publish failed", "error", pubErr)
			}
			return
		}

		msg.Job = job
		if pubErr := natsutil.Publish(ctx, nc, IngestSubject, msg); pubErr != nil {
			c.log.Error("build: retry publish failed", "error", pubErr)
		}
	})
}
