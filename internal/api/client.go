// Package api es el cliente de la API REST remota de la comunidad.
//
// Toda llamada devuelve *Error con un Kind fijado acá, en el borde HTTP, para
// que las capas de arriba (store, refresher, provider) clasifiquen sin mirar
// el texto de los mensajes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/portal/internal/metrics"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout aplica a cada llamada si el *http.Client no trae uno.
const DefaultTimeout = 15 * time.Second

const maxErrorBody = 64 << 10

// Client habla con la API remota.
type Client struct {
	baseURL   string
	http      *http.Client
	log       *zap.Logger
	userAgent string
}

// Option configura un Client.
type Option func(*Client)

// WithHTTPClient reemplaza el *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout fija el timeout por llamada.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger setea el logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithUserAgent setea el header User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New crea un cliente para baseURL (ej: https://api.example.org/api).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: invalid base url %q", baseURL)
	}
	c := &Client{
		baseURL:   strings.TrimRight(u.String(), "/"),
		http:      &http.Client{Timeout: DefaultTimeout},
		userAgent: "portal-cli",
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Or(c.log, "api")
	return c, nil
}

// BaseURL devuelve la URL base normalizada.
func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	endpoint string // etiqueta para métricas/logs
	method   string
	path     string
	query    url.Values
	token    string
	body     any
	out      any
}

type errorPayload struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Code    string              `json:"code"`
	Errors  map[string][]string `json:"errors"`
}

func (c *Client) do(ctx context.Context, r request) (err error) {
	start := time.Now()
	reqID := uuid.NewString()
	defer func() {
		kind := "ok"
		if err != nil {
			kind = KindOf(err).String()
		}
		metrics.APILatency.WithLabelValues(r.endpoint, kind).Observe(time.Since(start).Seconds())
		c.log.Debug("api call",
			logger.Op(r.endpoint),
			logger.Method(r.method),
			logger.Path(r.path),
			logger.RequestID(reqID),
			logger.Duration(time.Since(start)),
			logger.String("kind", kind),
		)
	}()

	var body io.Reader
	if r.body != nil {
		b, merr := json.Marshal(r.body)
		if merr != nil {
			return &Error{Kind: KindValidation, Message: "invalid request body", Err: merr}
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + "/" + strings.TrimLeft(r.path, "/")
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: "cannot build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// red caída, DNS, timeout o contexto cancelado: todo es transitorio
		return &Error{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if r.out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.out); err != nil {
		if errors.Is(err, io.EOF) {
			return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "empty response body"}
		}
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: "malformed response body", Err: err}
	}
	return nil
}

func decodeError(resp *http.Response) *Error {
	e := &Error{Kind: KindFromStatus(resp.StatusCode), Status: resp.StatusCode}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var p errorPayload
	if len(b) > 0 && json.Unmarshal(b, &p) == nil {
		e.Message = p.Message
		if e.Message == "" {
			e.Message = p.Error
		}
		e.Code = p.Code
		e.Fields = p.Errors
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}
