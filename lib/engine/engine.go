// Package engine talks to the local Docker engine: listing, inspecting,
// pulling and exporting images.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/onkernel/imgport/lib/images"
	"github.com/onkernel/imgport/lib/logger"
)

const DefaultPullTimeout = 30 * time.Minute

// DockerAPI is the part of the Docker engine client this package uses.
// *client.Client satisfies it.
type DockerAPI interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageSave(ctx context.Context, imageIDs []string, saveOpts ...client.ImageSaveOption) (io.ReadCloser, error)
	Ping(ctx context.Context) (types.Ping, error)
}

var _ DockerAPI = (*client.Client)(nil)

// Progress is one decoded message from the engine's pull stream.
type Progress struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Current int64  `json:"current,omitempty"`
	Total   int64  `json:"total,omitempty"`
}

// Manager exposes engine operations keyed by normalized image references.
type Manager interface {
	// Exists reports whether any local image matches the raw or fully
	// qualified reference.
	Exists(ctx context.Context, ref images.Ref) (bool, error)
	// Pull pulls the fully qualified reference and returns once the engine
	// has finished the pull. Concurrent pulls of the same reference share
	// one engine pull.
	Pull(ctx context.Context, ref images.Ref) error
	// PullWithProgress pulls like Pull, reporting each progress message to fn.
	PullWithProgress(ctx context.Context, ref images.Ref, fn func(Progress)) error
	// Inspect returns the size in bytes of a local image.
	Inspect(ctx context.Context, ref images.Ref) (int64, error)
	// Export opens the engine's tar stream for a local image. The caller
	// owns the returned stream and must close it.
	Export(ctx context.Context, ref images.Ref) (io.ReadCloser, error)
	Ping(ctx context.Context) error
}

// Options configures a Manager.
type Options struct {
	PullTimeout        time.Duration
	MaxConcurrentPulls int
}

type manager struct {
	client      DockerAPI
	pullTimeout time.Duration
	queue       *PullQueue
	pulls       singleflight.Group
	metrics     *Metrics
}

// NewClient connects to the engine at host, or the environment default when
// host is empty.
func NewClient(host string) (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return cli, nil
}

// NewManager creates a Manager over cli. meter may be nil.
func NewManager(cli DockerAPI, opts Options, meter metric.Meter) (Manager, error) {
	if opts.PullTimeout <= 0 {
		opts.PullTimeout = DefaultPullTimeout
	}
	queue := NewPullQueue(opts.MaxConcurrentPulls)
	metrics, err := NewMetrics(meter, queue)
	if err != nil {
		return nil, fmt.Errorf("create engine metrics: %w", err)
	}
	return &manager{
		client:      cli,
		pullTimeout: opts.PullTimeout,
		queue:       queue,
		metrics:     metrics,
	}, nil
}

func (m *manager) Exists(ctx context.Context, ref images.Ref) (bool, error) {
	summaries, err := m.client.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("reference", ref.Tagged()),
			filters.Arg("reference", ref.ShortTagged()),
		),
	})
	if err != nil {
		return false, fmt.Errorf("list images: %w", classify(err))
	}
	return len(summaries) > 0, nil
}

func (m *manager) Pull(ctx context.Context, ref images.Ref) error {
	key := ref.Tagged()
	// The shared pull must not die with whichever caller started it.
	pullCtx := context.WithoutCancel(ctx)
	ch := m.pulls.DoChan(key, func() (any, error) {
		return nil, m.pull(pullCtx, ref, nil)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *manager) PullWithProgress(ctx context.Context, ref images.Ref, fn func(Progress)) error {
	return m.pull(ctx, ref, fn)
}

func (m *manager) pull(ctx context.Context, ref images.Ref, fn func(Progress)) error {
	log := logger.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, m.pullTimeout)
	defer cancel()

	release, err := m.queue.Acquire(ctx, func(position int) {
		log.InfoContext(ctx, "pull queued", "image", ref.Tagged(), "position", position)
		if fn != nil {
			fn(Progress{Status: fmt.Sprintf("Waiting for a pull slot (position %d)", position)})
		}
	})
	if err != nil {
		return fmt.Errorf("wait for pull slot: %w", classify(err))
	}
	defer release()

	log.InfoContext(ctx, "pulling image", "image", ref.Tagged())
	start := time.Now()

	err = m.pullStream(ctx, ref, fn)
	if err != nil {
		m.metrics.RecordPull(ctx, "failed", time.Since(start))
		log.ErrorContext(ctx, "pull failed", "image", ref.Tagged(), "error", err)
		return err
	}

	m.metrics.RecordPull(ctx, "success", time.Since(start))
	log.InfoContext(ctx, "pulled image", "image", ref.Tagged(), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// pullStream starts the pull and drains the engine's progress stream. The
// engine reports failures that happen after the request was accepted as
// error messages inside the stream.
func (m *manager) pullStream(ctx context.Context, ref images.Ref, fn func(Progress)) error {
	rc, err := m.client.ImagePull(ctx, ref.Tagged(), image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref.Tagged(), classify(err))
	}
	defer rc.Close()

	dec := json.NewDecoder(rc)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read pull stream for %s: %w", ref.Tagged(), classify(err))
		}
		if msg.Error != nil {
			return fmt.Errorf("pull %s: %w", ref.Tagged(), classify(msg.Error))
		}
		if fn == nil {
			continue
		}
		p := Progress{Status: msg.Status, ID: msg.ID}
		if msg.Progress != nil {
			p.Current = msg.Progress.Current
			p.Total = msg.Progress.Total
		}
		fn(p)
	}
}

func (m *manager) Inspect(ctx context.Context, ref images.Ref) (int64, error) {
	var size int64
	err := m.withFallbackName(ref, func(name string) error {
		resp, err := m.client.ImageInspect(ctx, name)
		if err != nil {
			return err
		}
		size = resp.Size
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("inspect %s: %w", ref.Raw, classify(err))
	}
	return size, nil
}

func (m *manager) Export(ctx context.Context, ref images.Ref) (io.ReadCloser, error) {
	var stream io.ReadCloser
	err := m.withFallbackName(ref, func(name string) error {
		rc, err := m.client.ImageSave(ctx, []string{name})
		if err != nil {
			return err
		}
		stream = rc
		return nil
	})
	if err != nil {
		m.metrics.RecordExport(ctx, "failed")
		return nil, fmt.Errorf("export %s: %w", ref.Raw, classify(err))
	}
	m.metrics.RecordExport(ctx, "success")
	return stream, nil
}

func (m *manager) Ping(ctx context.Context) error {
	if _, err := m.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping engine: %w", classify(err))
	}
	return nil
}

// withFallbackName runs fn with the tagged repository name and, when the
// engine reports it missing, once more without the library/ namespace.
// Official images tagged locally as "redis:latest" are only found the second
// way. Both names carry a tag so a save never picks up sibling tags.
func (m *manager) withFallbackName(ref images.Ref, fn func(name string) error) error {
	err := fn(ref.Tagged())
	if err == nil || !cerrdefs.IsNotFound(err) || ref.ShortTagged() == ref.Tagged() {
		return err
	}
	return fn(ref.ShortTagged())
}
