package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"graderelay/internal/amqp"
	"graderelay/internal/artifact"
	"graderelay/internal/gitlab"
)

type fakeBroker struct {
	declared  []string
	published []amqp.JobRequest
	failSteps map[string]bool
}

func (f *fakeBroker) DeclareResponseQueue(name string) error {
	f.declared = append(f.declared, name)
	return nil
}

func (f *fakeBroker) PublishRequest(req amqp.JobRequest) error {
	if f.failSteps[req.Step] {
		return errors.New("publish failed")
	}
	f.published = append(f.published, req)
	return nil
}

type fakePackager struct{ fail bool }

func (f *fakePackager) DownloadArchive(ctx context.Context, hook *gitlab.PushEvent, dest string) error {
	if f.fail {
		return errors.New("no archive")
	}
	return os.WriteFile(dest, []byte("zip"), 0o644)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHook() gitlab.PushEvent {
	return gitlab.PushEvent{
		ObjectKind:  "push",
		Ref:         "refs/heads/main",
		After:       "abc123",
		CheckoutSHA: "abc123",
		ProjectID:   42,
		Project:     gitlab.Project{PathWithNamespace: "student/lab"},
	}
}

func TestDispatchOneStep(t *testing.T) {
	broker := &fakeBroker{}
	store := artifact.NewStore(t.TempDir())
	queues := make(chan string, 4)
	d := New(broker, &fakePackager{}, store, []string{"build"}, "http://relay.example.com/", queues, discardLogger())

	d.Dispatch(context.Background(), testHook())

	if len(broker.published) != 1 {
		t.Fatalf("%d requests published, want 1", len(broker.published))
	}
	req := broker.published[0]
	if req.Step != "build" {
		t.Errorf("step %q", req.Step)
	}
	if !strings.HasPrefix(req.ArtifactURL, "http://relay.example.com/zips/") {
		t.Errorf("artifact URL %q", req.ArtifactURL)
	}
	if len(broker.declared) != 1 || broker.declared[0] != req.ResponseQueue {
		t.Errorf("response queue %q not declared before publish (declared %v)", req.ResponseQueue, broker.declared)
	}
	select {
	case queue := <-queues:
		if queue != req.ResponseQueue {
			t.Errorf("announced queue %q, request says %q", queue, req.ResponseQueue)
		}
	default:
		t.Error("response queue not announced to the result relay")
	}

	hook, zipPath, err := gitlab.FromOpaque(req.Opaque)
	if err != nil {
		t.Fatalf("opaque token does not decode: %v", err)
	}
	if hook.CheckoutSHA != "abc123" || hook.ProjectID != 42 {
		t.Errorf("decoded hook %+v", hook)
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Errorf("artifact %s was not written: %v", zipPath, err)
	}
}

func TestDispatchStepsAreIndependent(t *testing.T) {
	broker := &fakeBroker{failSteps: map[string]bool{"build": true}}
	store := artifact.NewStore(t.TempDir())
	queues := make(chan string, 4)
	d := New(broker, &fakePackager{}, store, []string{"build", "test"}, "http://relay", queues, discardLogger())

	d.Dispatch(context.Background(), testHook())

	if len(broker.published) != 1 || broker.published[0].Step != "test" {
		t.Fatalf("published %+v, want only the test step", broker.published)
	}
}

func TestDispatchFreshTokensPerStep(t *testing.T) {
	broker := &fakeBroker{}
	store := artifact.NewStore(t.TempDir())
	queues := make(chan string, 4)
	d := New(broker, &fakePackager{}, store, []string{"build", "test"}, "http://relay", queues, discardLogger())

	d.Dispatch(context.Background(), testHook())

	if len(broker.published) != 2 {
		t.Fatalf("%d requests published, want 2", len(broker.published))
	}
	a, b := broker.published[0], broker.published[1]
	if a.Opaque == b.Opaque {
		t.Error("steps share an opaque token")
	}
	if a.ResponseQueue == b.ResponseQueue {
		t.Error("steps share a response queue")
	}
}

func TestDispatchPackagerFailure(t *testing.T) {
	broker := &fakeBroker{}
	store := artifact.NewStore(t.TempDir())
	queues := make(chan string, 4)
	d := New(broker, &fakePackager{fail: true}, store, []string{"build"}, "http://relay", queues, discardLogger())

	d.Dispatch(context.Background(), testHook())

	if len(broker.published) != 0 {
		t.Errorf("published %+v despite packaging failure", broker.published)
	}
}
