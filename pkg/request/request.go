// Package request implements the ApiRequester (C3): the single point
// through which the SDK talks to the platform's REST API — route
// resolution, authenticated HTTP calls, retries, pagination, file uploads
// and HTTP-status-to-error-taxonomy mapping.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/IGNF/gpf-sdk-go/pkg/auth"
	"github.com/IGNF/gpf-sdk-go/pkg/config"
	"github.com/IGNF/gpf-sdk-go/pkg/gpferrors"
	"github.com/IGNF/gpf-sdk-go/pkg/telemetry"
)

// Response is the ApiRequester's uniform result shape.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON unmarshals the response body, if any, into v.
func (r *Response) JSON(v interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Requester is the process-wide ApiRequester singleton.
type Requester struct {
	cfg        config.StoreAPIConfig
	routes     config.RouteTable
	authn      *auth.Authenticator
	httpClient *http.Client
	limiter    *rate.Limiter
	telemetry  *telemetry.Provider
	logger     *slog.Logger
}

// New builds a Requester. tel may be nil, in which case telemetry is a
// no-op (New on a disabled Config already returns a no-op Provider, but
// callers that skip telemetry setup entirely should still be able to
// construct a Requester).
func New(cfg *config.Config, authn *auth.Authenticator, tel *telemetry.Provider) *Requester {
	api := cfg.StoreAPI()

	var limiter *rate.Limiter
	if api.MaxRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(api.MaxRequestsPerSecond), 1)
	}

	if tel == nil {
		tel, _ = telemetry.New(context.Background(), telemetry.DefaultConfig())
	}

	return &Requester{
		cfg:        api,
		routes:     cfg.RouteTable(),
		authn:      authn,
		httpClient: &http.Client{},
		limiter:    limiter,
		telemetry:  tel,
		logger:     slog.Default().With("component", "request"),
	}
}

var (
	mu       sync.RWMutex
	instance *Requester
)

// Init builds the process-wide Requester and installs it as the singleton.
func Init(cfg *config.Config, authn *auth.Authenticator, tel *telemetry.Provider) *Requester {
	r := New(cfg, authn, tel)
	mu.Lock()
	instance = r
	mu.Unlock()
	return r
}

// Get returns the process-wide singleton. Panics if Init has not run yet.
func Get() *Requester {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("request: Get() called before Init()")
	}
	return instance
}

// Reset clears the singleton, for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}

// RouteRequest resolves routeName against the route table, substitutes
// routeParams (falling back to the configured default datastore for
// {datastore}), and delegates to URLRequest. jsonBody marks body as a JSON
// payload (sets content-type: application/json) rather than an opaque byte
// stream; it is ignored when files is non-empty (multipart takes over).
func (r *Requester) RouteRequest(ctx context.Context, routeName string, routeParams map[string]string, method string, query Params, body io.Reader, jsonBody bool, files map[string]string, headers http.Header, timeout time.Duration) (*Response, error) {
	def, ok := r.routes[routeName]
	if !ok {
		return nil, gpferrors.NewRouteNotFoundError(routeName)
	}

	path, err := def.Resolve(routeParams, r.cfg.DefaultDatastore)
	if err != nil {
		return nil, gpferrors.NewGpfSdkError(fmt.Sprintf("route %q invalide", routeName), err)
	}

	if method == "" {
		method = def.Method
	}

	fullURL := strings.TrimRight(r.cfg.RootURL, "/") + path

	return r.doRequestWithFiles(ctx, routeName, method, fullURL, query, body, jsonBody, files, headers, timeout)
}

// URLRequest performs an authenticated HTTP call against an already
// resolved, absolute URL.
func (r *Requester) URLRequest(ctx context.Context, fullURL, method string, query Params, body io.Reader, jsonBody bool, headers http.Header, timeout time.Duration) (*Response, error) {
	return r.doRequestWithFiles(ctx, fullURL, method, fullURL, query, body, jsonBody, nil, headers, timeout)
}

// RouteUploadFile reads filePath off disk (streaming, never buffering it
// whole) and sends it with the route's method (or method, when non-empty)
// as a multipart field named fileKey, plus any extra
// form fields in data. The timeout is resolved from the route's
// size-indexed timeout table.
func (r *Requester) RouteUploadFile(ctx context.Context, routeName, filePath, fileKey string, routeParams map[string]string, method string, query Params, data map[string]string) (*Response, error) {
	def, ok := r.routes[routeName]
	if !ok {
		return nil, gpferrors.NewRouteNotFoundError(routeName)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, gpferrors.NewGpfSdkError(fmt.Sprintf("fichier %q illisible", filePath), err)
	}

	timeout := resolveUploadTimeout(def.Timeout, info.Size())

	// boundary is fixed across attempts so the content-type header stays
	// constant even though the body (and so the multipart writer) is
	// rebuilt fresh per retry.
	boundaryWriter := multipart.NewWriter(io.Discard)
	boundary := boundaryWriter.Boundary()

	newBody := func() (io.Reader, error) {
		f, err := os.Open(filePath)
		if err != nil {
			return nil, err
		}

		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		if err := mw.SetBoundary(boundary); err != nil {
			f.Close()
			return nil, err
		}

		go func() {
			defer f.Close()
			var werr error
			defer func() {
				cerr := mw.Close()
				if werr == nil {
					werr = cerr
				}
				pw.CloseWithError(werr)
			}()

			for k, v := range data {
				if werr = mw.WriteField(k, v); werr != nil {
					return
				}
			}

			part, err := mw.CreateFormFile(fileKey, filepath.Base(filePath))
			if err != nil {
				werr = err
				return
			}
			if _, err := io.Copy(part, f); err != nil {
				werr = err
				return
			}
		}()

		return pr, nil
	}

	headers := http.Header{"content-type": []string{"multipart/form-data; boundary=" + boundary}}

	path, err := def.Resolve(routeParams, r.cfg.DefaultDatastore)
	if err != nil {
		return nil, gpferrors.NewGpfSdkError(fmt.Sprintf("route %q invalide", routeName), err)
	}
	if method == "" {
		method = def.Method
	}
	fullURL := strings.TrimRight(r.cfg.RootURL, "/") + path

	return r.doRequest(ctx, routeName, method, fullURL, query, newBody, headers, timeout, false)
}

var contentRangeRe = regexp.MustCompile(`^\s*\d+-\d+/(\d+)\s*$`)

// RangeNextPage reports whether more pages remain, per the Content-Range
// header's "start-end/total" shape (testable property 2).
func RangeNextPage(contentRange string, receivedCount int) bool {
	if contentRange == "" {
		return false
	}
	m := contentRangeRe.FindStringSubmatch(contentRange)
	if m == nil {
		return false
	}
	total, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	return receivedCount < total
}

// serverMessage extracts a human-readable message from a JSON error body
// shaped {"message": "..."}, falling back to def when the body is absent
// or differently shaped.
func serverMessage(body []byte, def string) string {
	if len(body) == 0 {
		return def
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return def
}

func resolveUploadTimeout(spec *config.RouteTimeoutSpec, size int64) time.Duration {
	if spec == nil {
		return 600 * time.Second
	}
	if spec.Flat != nil {
		return time.Duration(*spec.Flat * float64(time.Second))
	}
	for _, pair := range spec.Table {
		if float64(size) <= pair[0] {
			return time.Duration(pair[1] * float64(time.Second))
		}
	}
	return 600 * time.Second
}

func (r *Requester) doRequestWithFiles(ctx context.Context, spanName, method, fullURL string, query Params, body io.Reader, jsonBody bool, files map[string]string, headers http.Header, timeout time.Duration) (*Response, error) {
	if len(files) == 0 {
		var bodyBytes []byte
		if body != nil {
			b, err := io.ReadAll(body)
			if err != nil {
				return nil, gpferrors.NewGpfSdkError("lecture du corps de la requête impossible", err)
			}
			bodyBytes = b
		}
		newBody := func() (io.Reader, error) {
			if bodyBytes == nil {
				return nil, nil
			}
			return bytes.NewReader(bodyBytes), nil
		}
		return r.doRequest(ctx, spanName, method, fullURL, query, newBody, headers, timeout, jsonBody)
	}

	// Small attachments (tags/comments payloads never reach upload size) are
	// buffered once and replayed verbatim on retry.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return nil, gpferrors.NewGpfSdkError(fmt.Sprintf("fichier %q illisible", path), err)
		}
		part, err := mw.CreateFormFile(field, filepath.Base(path))
		if err != nil {
			f.Close()
			return nil, gpferrors.NewGpfSdkError("construction du corps multipart impossible", err)
		}
		_, cerr := io.Copy(part, f)
		f.Close()
		if cerr != nil {
			return nil, gpferrors.NewGpfSdkError(fmt.Sprintf("lecture de %q impossible", path), cerr)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, gpferrors.NewGpfSdkError("construction du corps multipart impossible", err)
	}
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("content-type", mw.FormDataContentType())
	bodyBytes := buf.Bytes()

	newBody := func() (io.Reader, error) {
		return bytes.NewReader(bodyBytes), nil
	}

	return r.doRequest(ctx, spanName, method, fullURL, query, newBody, headers, timeout, false)
}

// doRequest runs the retry/error-mapping loop described in spec.md §4.3.
// newBody is invoked once per attempt so a streamed file body (see
// RouteUploadFile) is re-opened from disk on retry rather than buffered in
// memory for the lifetime of the call.
func (r *Requester) doRequest(ctx context.Context, spanName, method, fullURL string, query Params, newBody func() (io.Reader, error), headers http.Header, timeout time.Duration, jsonContentType bool) (*Response, error) {
	ctx, finish := r.telemetry.TrackOperation(ctx, "request."+spanName,
		attribute.String("http.method", method), attribute.String("http.url", fullURL))

	reqURL := fullURL
	if qs := query.Encode(); qs != "" {
		reqURL += "?" + qs
	}

	if _, err := url.ParseRequestURI(reqURL); err != nil {
		finish(err)
		return nil, gpferrors.NewGpfSdkError(fmt.Sprintf("URL %q invalide", reqURL), err)
	}

	n := r.cfg.NbAttempts
	if n <= 0 {
		n = 1
	}

	requestID := uuid.NewString()

	var lastErr error
	var lastWasNetworkErr bool

	for attempt := 1; attempt <= n; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				finish(err)
				return nil, gpferrors.NewGpfSdkError("limitation de débit interrompue", err)
			}
		}

		body, err := newBody()
		if err != nil {
			finish(err)
			return nil, gpferrors.NewGpfSdkError("préparation du corps de la requête impossible", err)
		}

		resp, err := r.attempt(ctx, method, reqURL, body, headers, jsonContentType, timeout, requestID)
		if err != nil {
			lastErr = err
			lastWasNetworkErr = true
			r.logger.WarnContext(ctx, "network error", "attempt", attempt, "url", reqURL, "error", err)
			if attempt < n {
				time.Sleep(r.cfg.SecBetweenAttempts)
				continue
			}
			break
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			finish(nil)
			return resp, nil

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			r.authn.RevokeToken()
			lastErr = fmt.Errorf("statut %d", resp.StatusCode)
			lastWasNetworkErr = false
			continue

		case resp.StatusCode == http.StatusNotFound:
			err := gpferrors.NewNotFoundError(serverMessage(resp.Body, fullURL), resp.Body)
			finish(err)
			return nil, err

		case resp.StatusCode == http.StatusConflict:
			err := gpferrors.NewConflictError(serverMessage(resp.Body, "conflit"), resp.Body)
			finish(err)
			return nil, err

		case resp.StatusCode == http.StatusBadRequest:
			err := gpferrors.NewBadRequestError(serverMessage(resp.Body, "requête invalide"), resp.Body)
			finish(err)
			return nil, err

		default:
			lastErr = fmt.Errorf("statut %d", resp.StatusCode)
			lastWasNetworkErr = false
			if attempt < n {
				time.Sleep(r.cfg.SecBetweenAttempts)
			}
		}
	}

	var finalErr error
	if lastWasNetworkErr {
		msg := "L'exécution d'une requête a échoué après plusieurs tentatives."
		if r.cfg.CheckStatusURL != "" {
			msg += " Vérifiez l'état du service : " + r.cfg.CheckStatusURL
		}
		finalErr = gpferrors.NewGpfSdkError(msg, lastErr)
	} else {
		finalErr = gpferrors.NewGpfSdkError(
			fmt.Sprintf("L'exécution d'une requête a échoué après %d tentatives.", n), lastErr)
	}
	finish(finalErr)
	return nil, finalErr
}

func (r *Requester) attempt(ctx context.Context, method, reqURL string, body io.Reader, extraHeaders http.Header, jsonContentType bool, timeout time.Duration, requestID string) (*Response, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, reqURL, body)
	if err != nil {
		return nil, err
	}

	authHeaders, err := r.authn.GetHTTPHeader(attemptCtx, jsonContentType)
	if err != nil {
		return nil, err
	}
	for k, vs := range authHeaders {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range extraHeaders {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}
	httpReq.Header.Set("X-Request-Id", requestID)
	// No-op unless telemetry is enabled, in which case pkg/telemetry has
	// registered the global W3C trace-context propagator.
	otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}
