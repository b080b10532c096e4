package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"graderelay/internal/amqp"
)

// Publisher sends a payload to a named queue.
type Publisher interface {
	Publish(queue string, body []byte) error
}

// Acknowledger settles broker deliveries by tag.
type Acknowledger interface {
	Ack(tag uint64) error
	Reject(tag uint64, requeue bool) error
}

// Completion is the two-phase handle for a job: the only way to acknowledge
// the request is to publish its response first. A worker that dies before
// Complete succeeds leaves the request unacknowledged, so the broker hands
// it to another worker instead of losing the result.
type Completion struct {
	pub Publisher
	ack Acknowledger
}

// NewCompletion ties a publisher and an acknowledger together.
func NewCompletion(pub Publisher, ack Acknowledger) Completion {
	return Completion{pub: pub, ack: ack}
}

// Complete publishes the response to its queue and, only once the publish
// has succeeded, acknowledges the originating request. On publish failure
// the request is rejected back onto the queue for redelivery.
func (c Completion) Complete(resp amqp.JobResponse) error {
	queue, tag, body, err := finalize(&resp)
	if err != nil {
		return err
	}
	if err := c.pub.Publish(queue, body); err != nil {
		if rerr := c.ack.Reject(tag, true); rerr != nil {
			return rerr
		}
		return err
	}
	return c.ack.Ack(tag)
}

// finalize consumes the broker-local fields of a response and returns them
// alongside the serialized payload that goes on the wire.
func finalize(resp *amqp.JobResponse) (queue string, tag uint64, body []byte, err error) {
	queue, tag = resp.ResponseQueue, resp.DeliveryTag
	resp.ResponseQueue, resp.DeliveryTag = "", 0
	body, err = json.Marshal(resp)
	return queue, tag, body, err
}

// Relay is the worker-side bridge between the broker and local execution.
// Receive and Send are its two halves; they run concurrently over the same
// broker channel.
type Relay struct {
	comp   Completion
	logger *slog.Logger
}

// NewRelay builds a relay over a publisher/acknowledger pair (in production
// both are the shared *amqp.Client).
func NewRelay(pub Publisher, ack Acknowledger, logger *slog.Logger) *Relay {
	return &Relay{comp: NewCompletion(pub, ack), logger: logger}
}

// Receive decodes raw deliveries off the request queue and forwards them to
// the execution channel with their delivery tag attached. A payload that
// does not decode is logged and dropped unacknowledged; the broker's policy
// decides whether it is redelivered or expires.
func (r *Relay) Receive(ctx context.Context, deliveries <-chan amqp.Delivery, requests chan<- amqp.JobRequest) {
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var req amqp.JobRequest
			if err := json.Unmarshal(d.Body, &req); err != nil {
				r.logger.Error("unable to decode job request", "err", err)
				continue
			}
			req.DeliveryTag = d.Tag
			r.logger.Debug("received job request", "step", req.Step, "queue", req.ResponseQueue)
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Send publishes execution results and acknowledges the requests they
// answer. A failed completion is logged and the request left to the
// broker's redelivery path; the relay never retries on its own.
func (r *Relay) Send(ctx context.Context, responses <-chan amqp.JobResponse) {
	for {
		select {
		case resp, ok := <-responses:
			if !ok {
				return
			}
			r.logger.Debug("sending response", "step", resp.Step, "queue", resp.ResponseQueue)
			if err := r.comp.Complete(resp); err != nil {
				r.logger.Error("cannot send response", "step", resp.Step, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
