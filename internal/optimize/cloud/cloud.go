// Package cloud submits model-optimization jobs (compile, profile, link,
// quantize) to a remote device-cloud service, handling device selection,
// input-spec validation, and transient-failure retries.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
)

// ErrDynamicShape is returned when an InputSpec contains a negative
// (dynamic) dimension; cloud submission requires fully concrete shapes.
var ErrDynamicShape = errors.New("cloud: input spec has a dynamic dimension")

// InputSpec is one named input's concrete shape and dtype.
type InputSpec struct {
	Name  string
	Shape []int
	Dtype string
}

// Validate rejects any negative dimension.
func (s InputSpec) Validate() error {
	for _, d := range s.Shape {
		if d < 0 {
			return fmt.Errorf("%w: input %q has dim %d", ErrDynamicShape, s.Name, d)
		}
	}
	return nil
}

// JobKind identifies the kind of cloud operation a Job represents.
type JobKind string

const (
	JobCompile  JobKind = "compile"
	JobProfile  JobKind = "profile"
	JobLink     JobKind = "link"
	JobQuantize JobKind = "quantize"
)

// Job is a submitted cloud operation, returned by the Submit* calls and
// consumed by the job monitor.
type Job struct {
	ID           string
	Kind         JobKind
	Device       string
	DashboardURL string
}

// APIError distinguishes transient (retryable) failures from validation
// (4xx, non-retryable) ones.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloud API error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Service is the subset of the remote device-cloud API the orchestrator
// calls. A real implementation wraps an HTTP client; tests supply a fake.
type Service interface {
	ListDevices(ctx context.Context) ([]string, error)
	UploadModel(ctx context.Context, path string) (remoteID string, err error)
	SubmitCompile(ctx context.Context, remoteID, device string, specs []InputSpec, opts map[string]string) (Job, error)
	SubmitProfile(ctx context.Context, remoteID, device string) (Job, error)
	SubmitLink(ctx context.Context, remoteIDs []string, opts map[string]string) (Job, error)
	SubmitQuantize(ctx context.Context, remoteID, dtype string) (Job, error)
	DownloadArtifact(ctx context.Context, job Job) (path string, err error)
}

// Logger receives device-selection and retry diagnostics.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// Orchestrator wraps a Service with device selection, input validation, and
// retry/circuit-breaking around every network call.
type Orchestrator struct {
	svc     Service
	logger  Logger
	breaker *gobreaker.CircuitBreaker[any]
}

// New builds an Orchestrator around svc. A gobreaker.CircuitBreaker trips
// after 5 consecutive failures and probes again after 30s.
func New(svc Service, logger Logger) *Orchestrator {
	if logger == nil {
		logger = nopLogger{}
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "cloud-orchestrator",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Orchestrator{svc: svc, logger: logger, breaker: cb}
}

// retryPolicy: initial 1s, factor 2, cap 30s, max 5 attempts. 4xx errors are
// never retried.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	base, err := retry.NewExponential(time.Second)
	if err != nil {
		return err
	}
	backoff := retry.WithCappedDuration(30*time.Second, base)
	backoff = retry.WithMaxRetries(4, backoff) // first try + 4 retries = 5 attempts

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := o.breaker.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.transient() {
			return err // non-retryable: 4xx
		}
		o.logger.Printf("cloud: %s failed, retrying: %v", op, err)
		return retry.RetryableError(err)
	})
}

// SelectDevice implements the spec's device-selection policy: exact match,
// else first device whose name contains the preferred family token, else
// the first available device. The choice is logged.
func (o *Orchestrator) SelectDevice(ctx context.Context, preferred string) (string, error) {
	devices, err := o.svc.ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return "", errors.New("cloud: no devices available")
	}

	for _, d := range devices {
		if d == preferred {
			o.logger.Printf("cloud: device selection exact match %q", d)
			return d, nil
		}
	}

	familyToken := familyToken(preferred)
	if familyToken != "" {
		for _, d := range devices {
			if strings.Contains(d, familyToken) {
				o.logger.Printf("cloud: device selection family match %q (wanted %q)", d, preferred)
				return d, nil
			}
		}
	}

	o.logger.Printf("cloud: device selection fallback to first available %q (wanted %q)", devices[0], preferred)
	return devices[0], nil
}

// familyToken takes the first whitespace-separated token of a device name, e.g.
// "Samsung Galaxy S23" -> "Samsung".
func familyToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// UploadModel uploads the artifact at path and returns its remote id.
func (o *Orchestrator) UploadModel(ctx context.Context, path string) (string, error) {
	var remoteID string
	err := o.withRetry(ctx, "UploadModel", func(ctx context.Context) error {
		id, err := o.svc.UploadModel(ctx, path)
		remoteID = id
		return err
	})
	return remoteID, err
}

// SubmitCompile validates specs, resolves the device, and submits a compile job.
func (o *Orchestrator) SubmitCompile(ctx context.Context, remoteID, preferredDevice string, specs []InputSpec, opts map[string]string) (Job, error) {
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return Job{}, err
		}
	}
	device, err := o.SelectDevice(ctx, preferredDevice)
	if err != nil {
		return Job{}, err
	}
	var job Job
	err = o.withRetry(ctx, "SubmitCompile", func(ctx context.Context) error {
		j, err := o.svc.SubmitCompile(ctx, remoteID, device, specs, opts)
		job = j
		return err
	})
	return job, err
}

// SubmitProfile resolves the device and submits a profiling job.
func (o *Orchestrator) SubmitProfile(ctx context.Context, remoteID, preferredDevice string) (Job, error) {
	device, err := o.SelectDevice(ctx, preferredDevice)
	if err != nil {
		return Job{}, err
	}
	var job Job
	err = o.withRetry(ctx, "SubmitProfile", func(ctx context.Context) error {
		j, err := o.svc.SubmitProfile(ctx, remoteID, device)
		job = j
		return err
	})
	return job, err
}

// SubmitLink submits a link job joining remoteIDs (e.g. pre/post-processing
// graphs) into one deployable artifact.
func (o *Orchestrator) SubmitLink(ctx context.Context, remoteIDs []string, opts map[string]string) (Job, error) {
	var job Job
	err := o.withRetry(ctx, "SubmitLink", func(ctx context.Context) error {
		j, err := o.svc.SubmitLink(ctx, remoteIDs, opts)
		job = j
		return err
	})
	return job, err
}

// SubmitQuantize submits a quantization job targeting dtype.
func (o *Orchestrator) SubmitQuantize(ctx context.Context, remoteID, dtype string) (Job, error) {
	var job Job
	err := o.withRetry(ctx, "SubmitQuantize", func(ctx context.Context) error {
		j, err := o.svc.SubmitQuantize(ctx, remoteID, dtype)
		job = j
		return err
	})
	return job, err
}

// DownloadArtifact downloads the output of a completed job.
func (o *Orchestrator) DownloadArtifact(ctx context.Context, job Job) (string, error) {
	var path string
	err := o.withRetry(ctx, "DownloadArtifact", func(ctx context.Context) error {
		p, err := o.svc.DownloadArtifact(ctx, job)
		path = p
		return err
	})
	return path, err
}
