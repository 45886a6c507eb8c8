// Package render talks to the document rendering service that turns report
// templates plus placeholder values into downloadable PDF or DOCX files.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/raypacs/raypacs/internal/platform/apperror"
)

// Format selects the rendered document type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatDOCX {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/pdf"
}

// Valid reports whether f is a supported output format.
func (f Format) Valid() bool {
	return f == FormatPDF || f == FormatDOCX
}

// Request describes one rendering job. Images maps template image slots to
// source URLs; an empty map is fine, the template renders without them.
type Request struct {
	Template     string            `json:"template"`
	Placeholders map[string]string `json:"placeholders"`
	Images       map[string]string `json:"images,omitempty"`
	Format       Format            `json:"format"`
}

// Document is a rendered file.
type Document struct {
	Content     []byte
	ContentType string
}

// Renderer renders report documents.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Document, error)
}

// HTTPRenderer calls an external rendering service over HTTP.
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPRenderer creates a renderer client for the given service base URL.
func NewHTTPRenderer(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRenderer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Render POSTs the job to the rendering service and returns the produced
// document. Service outages and 5xx responses surface as downstream errors so
// callers can report them distinctly from bad input.
func (r *HTTPRenderer) Render(ctx context.Context, rreq Request) (*Document, error) {
	if rreq.Template == "" {
		return nil, apperror.New(apperror.InvalidArgument, "render template is required")
	}
	if !rreq.Format.Valid() {
		return nil, apperror.Newf(apperror.InvalidArgument, "unsupported output format %q", rreq.Format)
	}

	body, err := json.Marshal(rreq)
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "encode render request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, apperror.Wrap(apperror.Internal, "build render request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperror.Wrap(apperror.DownstreamUnavailable, "rendering service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, apperror.Newf(apperror.DownstreamUnavailable, "rendering service returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, apperror.Newf(apperror.Internal, "rendering service rejected request with status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.Wrap(apperror.DownstreamUnavailable, "read rendered document", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = rreq.Format.ContentType()
	}

	r.logger.Debug().
		Str("template", rreq.Template).
		Str("format", string(rreq.Format)).
		Int("bytes", len(content)).
		Msg("document rendered")

	return &Document{Content: content, ContentType: contentType}, nil
}

// StubRenderer produces placeholder documents without an external service.
// Used in dev mode and tests.
type StubRenderer struct{}

func (StubRenderer) Render(_ context.Context, rreq Request) (*Document, error) {
	if rreq.Template == "" {
		return nil, apperror.New(apperror.InvalidArgument, "render template is required")
	}
	if !rreq.Format.Valid() {
		return nil, apperror.Newf(apperror.InvalidArgument, "unsupported output format %q", rreq.Format)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "rendered %s as %s\n", rreq.Template, rreq.Format)
	for k, v := range rreq.Placeholders {
		fmt.Fprintf(&buf, "%s: %s\n", k, v)
	}
	return &Document{Content: buf.Bytes(), ContentType: rreq.Format.ContentType()}, nil
}
