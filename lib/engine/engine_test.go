package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onkernel/imgport/lib/images"
)

// fakeDocker is an in-memory DockerAPI keyed by image name.
type fakeDocker struct {
	mu        sync.Mutex
	sizes     map[string]int64
	tars      map[string]string
	listErr   error
	pullBody  string
	pullErr   error
	pullGate  chan struct{}
	pullCalls atomic.Int32
	listed    [][]string
	inspected []string
	saved     []string
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		sizes: map[string]int64{},
		tars:  map[string]string{},
	}
}

func (f *fakeDocker) ImageList(_ context.Context, options image.ListOptions) ([]image.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	refs := options.Filters.Get("reference")
	f.listed = append(f.listed, refs)
	var out []image.Summary
	for _, ref := range refs {
		if _, ok := f.sizes[ref]; ok {
			out = append(out, image.Summary{RepoTags: []string{ref}, Size: f.sizes[ref]})
		}
	}
	return out, nil
}

func (f *fakeDocker) ImageInspect(_ context.Context, name string, _ ...client.ImageInspectOption) (image.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspected = append(f.inspected, name)
	size, ok := f.sizes[name]
	if !ok {
		return image.InspectResponse{}, cerrdefs.ErrNotFound
	}
	return image.InspectResponse{ID: "sha256:" + name, Size: size}, nil
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.pullCalls.Add(1)
	if f.pullGate != nil {
		select {
		case <-f.pullGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.mu.Lock()
	f.sizes[ref] = 1024
	f.mu.Unlock()
	return io.NopCloser(strings.NewReader(f.pullBody)), nil
}

func (f *fakeDocker) ImageSave(_ context.Context, names []string, _ ...client.ImageSaveOption) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, names...)
	body, ok := f.tars[names[0]]
	if !ok {
		return nil, cerrdefs.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeDocker) Ping(context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.49"}, nil
}

func newTestManager(t *testing.T, fake *fakeDocker) Manager {
	t.Helper()
	mgr, err := NewManager(fake, Options{PullTimeout: time.Minute, MaxConcurrentPulls: 2}, nil)
	require.NoError(t, err)
	return mgr
}

func TestExistsFiltersByTaggedNames(t *testing.T) {
	fake := newFakeDocker()
	fake.sizes["library/redis:latest"] = 100
	mgr := newTestManager(t, fake)

	exists, err := mgr.Exists(context.Background(), images.Parse("redis"))
	require.NoError(t, err)
	assert.True(t, exists)
	require.Len(t, fake.listed, 1)
	assert.ElementsMatch(t, []string{"redis:latest", "library/redis:latest"}, fake.listed[0])

	exists, err = mgr.Exists(context.Background(), images.Parse("nginx"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExistsEngineDown(t *testing.T) {
	fake := newFakeDocker()
	fake.listErr = errors.New("Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?")
	mgr := newTestManager(t, fake)

	_, err := mgr.Exists(context.Background(), images.Parse("redis"))
	require.ErrorIs(t, err, images.ErrEngineUnavailable)
}

func TestInspectFallsBackToShortName(t *testing.T) {
	fake := newFakeDocker()
	fake.sizes["redis:latest"] = 4096
	mgr := newTestManager(t, fake)

	size, err := mgr.Inspect(context.Background(), images.Parse("redis"))
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
	assert.Equal(t, []string{"library/redis:latest", "redis:latest"}, fake.inspected)
}

func TestInspectNotFound(t *testing.T) {
	mgr := newTestManager(t, newFakeDocker())

	_, err := mgr.Inspect(context.Background(), images.Parse("myorg/app:1.2"))
	require.ErrorIs(t, err, images.ErrNotFound)
}

func TestExportStreamsTar(t *testing.T) {
	fake := newFakeDocker()
	fake.tars["library/alpine:3.20"] = "tar-bytes"
	mgr := newTestManager(t, fake)

	rc, err := mgr.Export(context.Background(), images.Parse("alpine:3.20"))
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "tar-bytes", string(body))
}

func TestUntaggedReferenceUsesDefaultTag(t *testing.T) {
	fake := newFakeDocker()
	fake.sizes["myorg/app:v1"] = 10
	fake.tars["myorg/app:v1"] = "v1"
	mgr := newTestManager(t, fake)
	ref := images.Parse("myorg/app")

	// Another tag of the repository is not the requested image.
	exists, err := mgr.Exists(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, []string{"myorg/app:latest"}, fake.listed[0])

	fake.sizes["myorg/app:latest"] = 2048
	fake.tars["myorg/app:latest"] = "latest"

	size, err := mgr.Inspect(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), size)

	rc, err := mgr.Export(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "latest", string(body))

	assert.Equal(t, []string{"myorg/app:latest"}, fake.inspected)
	assert.Equal(t, []string{"myorg/app:latest"}, fake.saved)
}

func TestPullUsesTaggedName(t *testing.T) {
	fake := newFakeDocker()
	mgr := newTestManager(t, fake)

	require.NoError(t, mgr.Pull(context.Background(), images.Parse("myorg/app")))

	exists, err := mgr.Exists(context.Background(), images.Parse("myorg/app:latest"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPullDrainsProgressStream(t *testing.T) {
	fake := newFakeDocker()
	fake.pullBody = `{"status":"Pulling from library/redis","id":"latest"}
{"status":"Downloading","id":"abc","progressDetail":{"current":10,"total":100}}
{"status":"Download complete","id":"abc"}
`
	mgr := newTestManager(t, fake)

	var seen []Progress
	err := mgr.PullWithProgress(context.Background(), images.Parse("redis"), func(p Progress) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	assert.Equal(t, "Downloading", seen[1].Status)
	assert.Equal(t, int64(10), seen[1].Current)
	assert.Equal(t, int64(100), seen[1].Total)

	exists, err := mgr.Exists(context.Background(), images.Parse("redis"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPullStreamErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{
			name: "login required",
			body: `{"errorDetail":{"message":"pull access denied for secret/app, repository does not exist or may require 'docker login': denied: requested access to the resource is denied"},"error":"pull access denied"}`,
			want: images.ErrAuthRequired,
		},
		{
			name: "access denied",
			body: `{"errorDetail":{"message":"pull access denied for secret/app"},"error":"pull access denied"}`,
			want: images.ErrAccessDenied,
		},
		{
			name: "manifest unknown",
			body: `{"errorDetail":{"message":"manifest for myorg/app:9 not found: manifest unknown: manifest unknown"}}`,
			want: images.ErrNotFound,
		},
		{
			name: "dns",
			body: `{"errorDetail":{"message":"Get \"https://registry-1.docker.io/v2/\": dial tcp: lookup registry-1.docker.io: no such host"}}`,
			want: images.ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeDocker()
			fake.pullBody = tt.body
			mgr := newTestManager(t, fake)

			err := mgr.Pull(context.Background(), images.Parse("secret/app"))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPullRequestErrorIsClassified(t *testing.T) {
	fake := newFakeDocker()
	fake.pullErr = cerrdefs.ErrNotFound.WithMessage("repository does not exist")
	mgr := newTestManager(t, fake)

	err := mgr.Pull(context.Background(), images.Parse("ghost"))
	require.ErrorIs(t, err, images.ErrNotFound)
}

func TestConcurrentPullsAreCoalesced(t *testing.T) {
	fake := newFakeDocker()
	fake.pullGate = make(chan struct{})
	mgr := newTestManager(t, fake)

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- mgr.Pull(context.Background(), images.Parse("redis"))
		}()
	}

	require.Eventually(t, func() bool { return fake.pullCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give the other callers time to join the in-flight pull.
	time.Sleep(50 * time.Millisecond)
	close(fake.pullGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fake.pullCalls.Load())
}

func TestPullCallerCancelDoesNotAbortSharedPull(t *testing.T) {
	fake := newFakeDocker()
	fake.pullGate = make(chan struct{})
	mgr := newTestManager(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Pull(ctx, images.Parse("redis")) }()

	require.Eventually(t, func() bool { return fake.pullCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(fake.pullGate)
	require.Eventually(t, func() bool {
		exists, err := mgr.Exists(context.Background(), images.Parse("redis"))
		return err == nil && exists
	}, time.Second, 5*time.Millisecond)
}
