package dispatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"graderelay/internal/amqp"
	"graderelay/internal/artifact"
	"graderelay/internal/gitlab"
)

// Broker is the slice of the AMQP client the dispatcher uses.
type Broker interface {
	DeclareResponseQueue(name string) error
	PublishRequest(req amqp.JobRequest) error
}

// Packager writes the artifact for a push to the given destination path.
type Packager interface {
	DownloadArchive(ctx context.Context, hook *gitlab.PushEvent, dest string) error
}

// Dispatcher turns each accepted push event into one job request per
// configured grading step. Steps of the same push are independent: a
// failure to dispatch one never aborts the others.
type Dispatcher struct {
	broker   Broker
	packager Packager
	store    *artifact.Store
	steps    []string
	baseURL  string
	queues   chan<- string
	logger   *slog.Logger
}

// New wires a dispatcher. Every response queue it declares is announced on
// queues so the result relay can subscribe.
func New(broker Broker, packager Packager, store *artifact.Store, steps []string, baseURL string, queues chan<- string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		broker:   broker,
		packager: packager,
		store:    store,
		steps:    steps,
		baseURL:  strings.TrimRight(baseURL, "/"),
		queues:   queues,
		logger:   logger,
	}
}

// Run consumes accepted hooks until the channel closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, hooks <-chan gitlab.PushEvent) {
	for {
		select {
		case hook, ok := <-hooks:
			if !ok {
				return
			}
			d.Dispatch(ctx, hook)
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch publishes one job request per configured step for a push.
func (d *Dispatcher) Dispatch(ctx context.Context, hook gitlab.PushEvent) {
	d.logger.Info("dispatching push", "source", hook.Desc(), "sha", hook.CheckoutSHA, "steps", len(d.steps))
	for _, step := range d.steps {
		if err := d.dispatchStep(ctx, hook, step); err != nil {
			d.logger.Error("cannot dispatch step", "step", step, "source", hook.Desc(), "err", err)
		}
	}
}

func (d *Dispatcher) dispatchStep(ctx context.Context, hook gitlab.PushEvent, step string) error {
	zipPath, err := d.store.Allocate(hook.Project.PathWithNamespace, hook.CheckoutSHA)
	if err != nil {
		return err
	}
	if err := d.packager.DownloadArchive(ctx, &hook, zipPath); err != nil {
		return err
	}
	opaque, err := gitlab.ToOpaque(hook, zipPath)
	if err != nil {
		return err
	}
	queue := "results-" + uuid.NewString()
	if err := d.broker.DeclareResponseQueue(queue); err != nil {
		return err
	}
	req := amqp.JobRequest{
		Step:          step,
		ArtifactURL:   d.baseURL + "/zips/" + filepath.Base(zipPath),
		ResponseQueue: queue,
		Opaque:        opaque,
	}
	if err := d.broker.PublishRequest(req); err != nil {
		return err
	}
	d.logger.Debug("published job request", "step", step, "queue", queue)
	select {
	case d.queues <- queue:
	case <-ctx.Done():
	}
	return nil
}
