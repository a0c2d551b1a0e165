// Package transport provides the default injected transport capabilities:
// plain HTTP, GraphQL over HTTP, and WebSocket. The pipeline itself never
// performs network I/O outside these capabilities.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
)

// HTTPTransport dispatches RequestStates over net/http. It generates the
// multipart boundary at dispatch time, which is why the compiler never
// stamps a Content-Type for multipart bodies.
type HTTPTransport struct {
	client *http.Client
	logger *slog.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithTimeout bounds each exchange end to end.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) { t.client.Timeout = d }
}

// WithSafeDialer rejects connections to private and loopback ranges.
func WithSafeDialer() HTTPOption {
	return func(t *HTTPTransport) {
		t.client.Transport = otelhttp.NewTransport(newSafeDialerTransport())
	}
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(t *HTTPTransport) { t.logger = logger }
}

// NewHTTPTransport creates the default HTTP capability. The underlying
// round tripper is instrumented with otelhttp so dispatches join the
// execution's trace.
func NewHTTPTransport(opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) Name() string { return ports.ProtocolHTTP }

// Dispatch performs the exchange. Cancellation propagates through ctx:
// net/http aborts the in-flight request when the context is done.
func (t *HTTPTransport) Dispatch(ctx context.Context, req *domain.RequestState) (*domain.ResponseState, error) {
	target, err := BuildURL(req)
	if err != nil {
		return nil, err
	}

	body, contentType, err := buildBody(&req.Body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	applyHeaders(httpReq, req, contentType)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

// BuildURL applies path parameters to :name and {name} segments and
// appends the enabled query parameters.
func BuildURL(req *domain.RequestState) (string, error) {
	raw := req.URL
	for _, p := range req.PathParams {
		if !p.Enabled || p.Key == "" {
			continue
		}
		raw = strings.ReplaceAll(raw, ":"+p.Key, url.PathEscape(p.Value))
		raw = strings.ReplaceAll(raw, "{"+p.Key+"}", url.PathEscape(p.Value))
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for _, p := range req.Query {
		if p.Enabled {
			q.Add(p.Key, p.Value)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// buildBody returns the body reader and, for multipart, the content type
// carrying the generated boundary.
func buildBody(b *domain.Body) (io.Reader, string, error) {
	switch b.Kind {
	case domain.BodyNone:
		return nil, "", nil

	case domain.BodyJSON, domain.BodyXML, domain.BodyYAML:
		return strings.NewReader(b.Text), "", nil

	case domain.BodyURLEncoded:
		form := url.Values{}
		for _, row := range b.Form {
			form.Add(row.Key, row.Value)
		}
		return strings.NewReader(form.Encode()), "", nil

	case domain.BodyMultipart:
		var buf strings.Builder
		w := multipart.NewWriter(&buf)
		for _, row := range b.Form {
			// A value of the form @/path/to/file uploads the file.
			if path, ok := strings.CutPrefix(row.Value, "@"); ok {
				if err := writeFilePart(w, row.Key, path); err != nil {
					return nil, "", err
				}
				continue
			}
			if err := w.WriteField(row.Key, row.Value); err != nil {
				return nil, "", fmt.Errorf("multipart field %q: %w", row.Key, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("finalize multipart body: %w", err)
		}
		return strings.NewReader(buf.String()), w.FormDataContentType(), nil

	case domain.BodyRaw:
		f, err := os.Open(b.FilePath)
		if err != nil {
			return nil, "", fmt.Errorf("open body file: %w", err)
		}
		return f, "", nil

	case domain.BodyGraphQL:
		payload, err := graphQLPayload(b.GraphQL)
		if err != nil {
			return nil, "", err
		}
		return strings.NewReader(payload), "", nil
	}
	return nil, "", fmt.Errorf("unsupported body kind %q", b.Kind)
}

func writeFilePart(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("multipart file %q: %w", path, err)
	}
	defer f.Close()
	part, err := w.CreateFormFile(field, f.Name())
	if err != nil {
		return fmt.Errorf("multipart file part %q: %w", field, err)
	}
	_, err = io.Copy(part, f)
	return err
}

// applyHeaders sets the enabled headers. An author-declared Content-Type
// is authoritative; the multipart content type (with its generated
// boundary) is used only when none was declared.
func applyHeaders(httpReq *http.Request, req *domain.RequestState, multipartContentType string) {
	for _, h := range req.Headers {
		if h.Enabled {
			httpReq.Header.Set(h.Key, h.Value)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" {
		switch {
		case multipartContentType != "":
			httpReq.Header.Set("Content-Type", multipartContentType)
		case req.ContentType != "":
			httpReq.Header.Set("Content-Type", req.ContentType)
		}
	}
}

func readResponse(resp *http.Response) (*domain.ResponseState, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	rs := &domain.ResponseState{
		StatusCode:  resp.StatusCode,
		StatusText:  strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode))),
		Body:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}
	for key, values := range resp.Header {
		for _, v := range values {
			rs.Headers = append(rs.Headers, domain.Header{Key: key, Value: v, Enabled: true})
		}
	}
	return rs, nil
}

var _ ports.Transport = (*HTTPTransport)(nil)
