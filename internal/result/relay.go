package result

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"graderelay/internal/amqp"
	"graderelay/internal/artifact"
	"graderelay/internal/gitlab"
	"graderelay/internal/report"
)

// Poster is the slice of the GitLab API the relay needs.
type Poster interface {
	PostStatus(ctx context.Context, hook *gitlab.PushEvent, state gitlab.State, step, description string) error
	PostComment(ctx context.Context, hook *gitlab.PushEvent, note string) error
}

// Consumer provides per-queue response subscriptions.
type Consumer interface {
	ConsumeQueue(name string) (<-chan amqp.Delivery, error)
	Ack(tag uint64) error
	DeleteQueue(name string) error
}

// Relay consumes job responses, renders them into reports and posts the
// outcome back to GitLab. One watcher per response queue; a queue carries
// exactly one response and is deleted once it has been handled.
type Relay struct {
	consumer Consumer
	poster   Poster
	store    *artifact.Store
	logger   *slog.Logger
}

// NewRelay wires the response side of the pipeline.
func NewRelay(consumer Consumer, poster Poster, store *artifact.Store, logger *slog.Logger) *Relay {
	return &Relay{consumer: consumer, poster: poster, store: store, logger: logger}
}

// Run subscribes to each response queue announced by the dispatcher.
func (r *Relay) Run(ctx context.Context, queues <-chan string) {
	for {
		select {
		case queue, ok := <-queues:
			if !ok {
				return
			}
			go r.watch(ctx, queue)
		case <-ctx.Done():
			return
		}
	}
}

// watch waits for the single response of one job, processes it and tears
// the queue down.
func (r *Relay) watch(ctx context.Context, queue string) {
	deliveries, err := r.consumer.ConsumeQueue(queue)
	if err != nil {
		r.logger.Error("cannot consume response queue", "queue", queue, "err", err)
		return
	}
	select {
	case d, ok := <-deliveries:
		if !ok {
			return
		}
		r.handle(ctx, d)
		if err := r.consumer.Ack(d.Tag); err != nil {
			r.logger.Error("cannot ack response", "queue", queue, "err", err)
		}
	case <-ctx.Done():
		return
	}
	if err := r.consumer.DeleteQueue(queue); err != nil {
		r.logger.Warn("cannot delete response queue", "queue", queue, "err", err)
	}
}

func (r *Relay) handle(ctx context.Context, d amqp.Delivery) {
	var resp amqp.JobResponse
	if err := json.Unmarshal(d.Body, &resp); err != nil {
		r.logger.Error("unable to decode job response", "err", err)
		return
	}
	r.Process(ctx, resp)
}

// Process renders one job response and posts status and, on failure, the
// full report as a comment. The artifact referenced by the opaque token is
// removed whatever happens after the token decodes; losing a temporary zip
// is never worth failing the pipeline over.
func (r *Relay) Process(ctx context.Context, resp amqp.JobResponse) {
	hook, zipPath, err := gitlab.FromOpaque(resp.Opaque)
	if err != nil {
		r.logger.Error("dropping response with bad opaque token", "step", resp.Step, "err", err)
		return
	}
	defer func() {
		if err := r.store.Remove(zipPath); err != nil {
			r.logger.Warn("could not remove zip file", "path", zipPath, "err", err)
		} else {
			r.logger.Debug("removed zip file", "path", zipPath)
		}
	}()

	markdown, grade, maxGrade, err := report.ToMarkdown(resp.Step, resp.ResultPayload)
	if err != nil {
		r.logger.Error("dropping response with bad result payload", "step", resp.Step, "err", err)
		return
	}
	state := gitlab.StateFailed
	if grade == maxGrade {
		state = gitlab.StateSuccess
	}
	description := fmt.Sprintf("grade: %d/%d", grade, maxGrade)
	if err := r.poster.PostStatus(ctx, &hook, state, resp.Step, description); err != nil {
		r.logger.Error("cannot post status", "source", hook.Desc(), "step", resp.Step, "err", err)
	}
	if state == gitlab.StateSuccess {
		r.logger.Info("tests are a success, posting status only", "source", hook.Desc(), "step", resp.Step)
		return
	}
	r.logger.Info("tests are a failure, posting status and comment",
		"source", hook.Desc(), "step", resp.Step, "grade", grade, "max_grade", maxGrade)
	if err := r.poster.PostComment(ctx, &hook, markdown); err != nil {
		r.logger.Error("cannot post comment", "source", hook.Desc(), "step", resp.Step, "err", err)
	}
}
