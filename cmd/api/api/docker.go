package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nrednav/cuid2"
	"github.com/samber/lo"

	"github.com/onkernel/imgport/lib/hub"
	"github.com/onkernel/imgport/lib/images"
	"github.com/onkernel/imgport/lib/logger"
	"github.com/onkernel/imgport/lib/oapi"
)

const maxRequestBody = 1 << 20

// ExportImage streams an image as a docker-save tar archive, pulling it
// first when it is missing and autoPull allows.
func (s *ApiService) ExportImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req oapi.ExportRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	ref, err := images.ParseAndValidate(req.ImageName)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	log := logger.FromContext(ctx).With("export_id", cuid2.Generate(), "image", ref.Raw)
	ctx = logger.AddToContext(ctx, log)
	start := time.Now()

	exists, err := s.Engine.Exists(ctx, ref)
	if err != nil {
		s.exportFailed(ctx, w, err)
		return
	}
	if !exists {
		if !req.WantsAutoPull() {
			s.exportFailed(ctx, w, fmt.Errorf("%w: %s (set autoPull to pull it)", images.ErrNotLocal, ref.Raw))
			return
		}
		log.InfoContext(ctx, "image not present locally, pulling", "fqn", ref.FullyQualifiedName)
		if err := s.Engine.Pull(ctx, ref); err != nil {
			s.exportFailed(ctx, w, err)
			return
		}
	}

	size, err := s.Engine.Inspect(ctx, ref)
	if err != nil {
		s.exportFailed(ctx, w, err)
		return
	}
	if size > s.MaxExportSize {
		s.exportFailed(ctx, w, fmt.Errorf("%w: %s is %s, limit is %s", images.ErrTooLarge,
			ref.Raw, humanize.Bytes(uint64(size)), humanize.Bytes(uint64(s.MaxExportSize))))
		return
	}

	stream, err := s.Engine.Export(ctx, ref)
	if err != nil {
		s.exportFailed(ctx, w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, ref.FileName))
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Image-Size", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	written, err := io.Copy(w, stream)
	if err != nil {
		if ctx.Err() != nil {
			log.InfoContext(ctx, "client disconnected during export", "bytes", written)
			s.Metrics.RecordExport(ctx, "cancelled", written)
			return
		}
		log.ErrorContext(ctx, "export stream failed", "bytes", written, "error", err)
		s.Metrics.RecordExport(ctx, "failed", written)
		// Headers are already sent; abort the connection so the client
		// sees a truncated transfer rather than a complete archive.
		panic(http.ErrAbortHandler)
	}

	log.InfoContext(ctx, "export complete",
		"bytes", written,
		"image_size", humanize.Bytes(uint64(size)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	s.Metrics.RecordExport(ctx, "success", written)
}

func (s *ApiService) exportFailed(ctx context.Context, w http.ResponseWriter, err error) {
	_, code := statusFor(err)
	s.Metrics.RecordExport(ctx, code, 0)
	writeError(ctx, w, err)
}

// GetImageSize reports the local size of an image when it is present, and
// the registry's compressed size and description when they can be fetched.
// Registry failures never fail the request.
func (s *ApiService) GetImageSize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req oapi.ImageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	ref, err := images.ParseAndValidate(req.ImageName)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	remote, remoteErr := s.Registry.GetRemoteInfo(ctx, ref)
	if remoteErr != nil {
		log.WarnContext(ctx, "registry lookup failed", "image", ref.Raw, "error", remoteErr)
		s.Metrics.RecordRegistryLookup(ctx, "failed")
		remote = &hub.RemoteInfo{}
	} else {
		s.Metrics.RecordRegistryLookup(ctx, "success")
	}

	report := oapi.SizeReport{
		Size:        remote.SizeBytes,
		Description: lo.EmptyableToPtr(remote.Description),
	}

	exists, err := s.Engine.Exists(ctx, ref)
	if err != nil {
		log.WarnContext(ctx, "local lookup failed", "image", ref.Raw, "error", err)
	}
	if exists {
		localSize, err := s.Engine.Inspect(ctx, ref)
		if err != nil {
			log.WarnContext(ctx, "inspect failed, reporting registry size", "image", ref.Raw, "error", err)
		} else {
			report.Size = localSize
			report.LocalExists = true
			if remoteErr == nil {
				report.HubSize = lo.ToPtr(remote.SizeBytes)
			}
		}
	}

	oapi.WriteJSON(w, http.StatusOK, report)
}

// CheckImage reports whether an image is present in the local engine.
func (s *ApiService) CheckImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req oapi.ImageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	ref, err := images.ParseAndValidate(req.ImageName)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	exists, err := s.Engine.Exists(ctx, ref)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	oapi.WriteJSON(w, http.StatusOK, oapi.CheckReport{Exists: exists})
}

// SearchImages searches Docker Hub repositories.
func (s *ApiService) SearchImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req oapi.SearchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if req.Query == "" {
		writeError(ctx, w, fmt.Errorf("%w: query is required", errBadRequest))
		return
	}

	results, err := s.Registry.Search(ctx, req.Query, req.Limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	oapi.WriteJSON(w, http.StatusOK, oapi.SearchResponse{
		Results: lo.Map(results, func(r hub.SearchResult, _ int) oapi.SearchResult {
			return oapi.SearchResult(r)
		}),
	})
}

// decodeBody reads a JSON request body. A missing body is treated as a
// missing image name.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return images.ErrNameRequired
	default:
		return fmt.Errorf("%w: malformed request body: %v", errBadRequest, err)
	}
}
