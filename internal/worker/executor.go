package worker

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"time"

	"gopkg.in/yaml.v3"

	"graderelay/internal/amqp"
	"graderelay/internal/config"
	"graderelay/internal/report"
)

// Executor runs the configured grader program for each job request and
// turns its output into a job response. Run it once per parallel slot.
type Executor struct {
	program string
	dir     string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor builds an executor from the [tester] configuration.
func NewExecutor(cfg config.TesterSection, logger *slog.Logger) *Executor {
	return &Executor{
		program: cfg.Program,
		dir:     cfg.Dir,
		timeout: cfg.Timeout(),
		logger:  logger,
	}
}

// Run consumes job requests and produces one response per request until the
// requests channel closes or ctx is done.
func (e *Executor) Run(ctx context.Context, requests <-chan amqp.JobRequest, responses chan<- amqp.JobResponse) {
	for {
		select {
		case req, ok := <-requests:
			if !ok {
				return
			}
			resp := e.execute(ctx, req)
			select {
			case responses <- resp:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// execute invokes the grader as `program <step> <artifact-url>` and takes
// its stdout as the YAML result. Execution errors become a report with an
// explanation so the frontend still posts a status.
func (e *Executor) execute(ctx context.Context, req amqp.JobRequest) amqp.JobResponse {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Info("running step", "step", req.Step, "artifact", req.ArtifactURL)
	cmd := exec.CommandContext(cctx, e.program, req.Step, req.ArtifactURL)
	cmd.Dir = e.dir
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	payload := ""
	if err := cmd.Run(); err != nil {
		e.logger.Error("step execution failed", "step", req.Step, "err", err, "stderr", errOut.String())
		payload = errorReport(err)
	} else {
		payload = out.String()
	}
	return amqp.JobResponse{
		Step:          req.Step,
		Opaque:        req.Opaque,
		ResultPayload: payload,
		ResponseQueue: req.ResponseQueue,
		DeliveryTag:   req.DeliveryTag,
	}
}

func errorReport(err error) string {
	// MaxGrade 1 keeps the posted status on the failure side; a 0/0 report
	// would read as all tests passing.
	data, merr := yaml.Marshal(report.Report{
		MaxGrade:    1,
		Explanation: err.Error(),
	})
	if merr != nil {
		return "max-grade: 1\nexplanation: tester failed\n"
	}
	return string(data)
}
