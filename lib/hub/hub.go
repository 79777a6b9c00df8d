// Package hub queries a public image registry for image sizes and repository
// metadata without pulling anything into the local engine.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/distribution/reference"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/samber/lo"

	"github.com/onkernel/imgport/lib/images"
	"github.com/onkernel/imgport/lib/logger"
)

const (
	DefaultRegistryHost = "index.docker.io"
	DefaultHubURL       = "https://hub.docker.com"
	DefaultPlatform     = "linux/amd64"
	DefaultTimeout      = 30 * time.Second

	maxManifestBytes int64 = 16 * 1024 * 1024
	maxHubBodyBytes  int64 = 4 * 1024 * 1024
)

var manifestAccept = strings.Join([]string{
	ocispec.MediaTypeImageManifest,
	ocispec.MediaTypeImageIndex,
	string(types.DockerManifestSchema2),
	string(types.DockerManifestList),
}, ", ")

// RemoteInfo is what the registry knows about an image tag.
type RemoteInfo struct {
	SizeBytes   int64
	Description string
}

// Options configures a Client.
type Options struct {
	RegistryHost string
	Insecure     bool
	HubURL       string
	Platform     string
	Timeout      time.Duration
	// Transport is used for every outbound request; nil means
	// http.DefaultTransport.
	Transport http.RoundTripper
}

// Client looks up image information on a remote registry.
type Client struct {
	registryHost string
	nameOpts     []name.Option
	hubURL       string
	platform     *v1.Platform
	timeout      time.Duration
	transport    http.RoundTripper
	http         *http.Client
}

// NewClient creates a registry client, filling in Docker Hub defaults.
func NewClient(opts Options) (*Client, error) {
	if opts.RegistryHost == "" {
		opts.RegistryHost = DefaultRegistryHost
	}
	if opts.HubURL == "" {
		opts.HubURL = DefaultHubURL
	}
	if opts.Platform == "" {
		opts.Platform = DefaultPlatform
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	platform, err := v1.ParsePlatform(opts.Platform)
	if err != nil {
		return nil, fmt.Errorf("parse platform %q: %w", opts.Platform, err)
	}

	var nameOpts []name.Option
	if opts.Insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}

	return &Client{
		registryHost: opts.RegistryHost,
		nameOpts:     nameOpts,
		hubURL:       strings.TrimRight(opts.HubURL, "/"),
		platform:     platform,
		timeout:      opts.Timeout,
		transport:    opts.Transport,
		http:         &http.Client{Transport: opts.Transport, Timeout: opts.Timeout},
	}, nil
}

// GetRemoteInfo computes the image's compressed size from its manifest and
// looks up the repository description. The description is best effort:
// failing to fetch it never fails the call.
func (c *Client) GetRemoteInfo(ctx context.Context, ref images.Ref) (*RemoteInfo, error) {
	log := logger.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	size, err := c.manifestSize(ctx, ref)
	if err != nil {
		return nil, err
	}

	description, err := c.description(ctx, ref)
	if err != nil {
		log.WarnContext(ctx, "registry description lookup failed", "image", ref.Raw, "error", err)
		description = ""
	}

	return &RemoteInfo{SizeBytes: size, Description: description}, nil
}

// manifestSize obtains a pull-scoped token for the repository, fetches the
// tag's manifest and sums its layer sizes.
func (c *Client) manifestSize(ctx context.Context, ref images.Ref) (int64, error) {
	repo, err := c.repository(ref)
	if err != nil {
		return 0, err
	}

	rt, err := transport.NewWithContext(ctx, repo.Registry, authn.Anonymous, c.transport, []string{repo.Scope(transport.PullScope)})
	if err != nil {
		return 0, fmt.Errorf("registry token for %s: %w", repo.RepositoryStr(), classify(err))
	}
	client := &http.Client{Transport: rt}

	body, mediaType, err := c.fetchManifest(ctx, client, repo, ref.Tag)
	if err != nil {
		return 0, err
	}

	if isIndex(mediaType, body) {
		index, err := v1.ParseIndexManifest(bytes.NewReader(body))
		if err != nil {
			return 0, fmt.Errorf("parse manifest index: %w", err)
		}
		desc, ok := lo.Find(index.Manifests, func(d v1.Descriptor) bool {
			return d.Platform != nil && d.Platform.Satisfies(*c.platform)
		})
		if !ok {
			logger.FromContext(ctx).InfoContext(ctx, "no manifest for platform", "image", ref.Raw, "platform", c.platform.String())
			return 0, nil
		}
		body, _, err = c.fetchManifest(ctx, client, repo, desc.Digest.String())
		if err != nil {
			return 0, err
		}
	}

	var manifest v1.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return 0, fmt.Errorf("parse manifest: %w", err)
	}
	return lo.SumBy(manifest.Layers, func(d v1.Descriptor) int64 { return d.Size }), nil
}

// repository resolves ref against the configured registry. References that
// already name another registry host are used as they are.
func (c *Client) repository(ref images.Ref) (name.Repository, error) {
	named, err := reference.ParseNormalizedNamed(ref.Repository)
	if err != nil {
		return name.Repository{}, fmt.Errorf("%w: %v", images.ErrInvalidName, err)
	}
	target := c.registryHost + "/" + reference.Path(named)
	if !isDockerHub(named) {
		target = named.Name()
	}
	repo, err := name.NewRepository(target, c.nameOpts...)
	if err != nil {
		return name.Repository{}, fmt.Errorf("%w: %v", images.ErrInvalidName, err)
	}
	return repo, nil
}

func isDockerHub(named reference.Named) bool {
	return reference.Domain(named) == "docker.io"
}

func (c *Client) fetchManifest(ctx context.Context, client *http.Client, repo name.Repository, reference string) ([]byte, string, error) {
	u := url.URL{
		Scheme: repo.Registry.Scheme(),
		Host:   repo.RegistryStr(),
		Path:   fmt.Sprintf("/v2/%s/manifests/%s", repo.RepositoryStr(), reference),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", manifestAccept)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch manifest %s:%s: %w", repo.RepositoryStr(), reference, classify(err))
	}
	defer resp.Body.Close()

	if err := transport.CheckError(resp, http.StatusOK); err != nil {
		return nil, "", fmt.Errorf("fetch manifest %s:%s: %w", repo.RepositoryStr(), reference, classify(err))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read manifest: %w", classify(err))
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func isIndex(mediaType string, body []byte) bool {
	switch types.MediaType(mediaType) {
	case types.OCIImageIndex, types.DockerManifestList:
		return true
	case types.OCIManifestSchema1, types.DockerManifestSchema2:
		return false
	}
	var sniff struct {
		MediaType string            `json:"mediaType"`
		Manifests []json.RawMessage `json:"manifests"`
	}
	if json.Unmarshal(body, &sniff) != nil {
		return false
	}
	mt := types.MediaType(sniff.MediaType)
	return mt.IsIndex() || (sniff.MediaType == "" && len(sniff.Manifests) > 0)
}

type repositoryResponse struct {
	Description string `json:"description"`
}

func (c *Client) description(ctx context.Context, ref images.Ref) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref.Repository)
	if err != nil || !isDockerHub(named) {
		return "", err
	}
	var repo repositoryResponse
	if err := c.getHubJSON(ctx, "/v2/repositories/"+reference.Path(named)+"/", nil, &repo); err != nil {
		return "", err
	}
	return repo.Description, nil
}

// getHubJSON issues a GET against the hub API and decodes a JSON body.
func (c *Client) getHubJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.hubURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	if err := transport.CheckError(resp, http.StatusOK); err != nil {
		return classify(err)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxHubBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
