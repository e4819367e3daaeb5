package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/usecase"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/observability/metrics"
)

const maxQueryBodyBytes = 64 << 10

type Options struct {
	Service        string
	DefaultK       int
	RateLimitRPS   int
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
	RequestTimeout time.Duration
}

type Router struct {
	query   ports.KnowledgeQueryService
	index   ports.KnowledgeIndexReader
	metrics *metrics.HTTPServerMetrics
	opts    Options
	logger  *slog.Logger
}

func NewRouter(
	query ports.KnowledgeQueryService,
	index ports.KnowledgeIndexReader,
	m *metrics.HTTPServerMetrics,
	opts Options,
	logger *slog.Logger,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.QueueWait <= 0 {
		opts.QueueWait = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		query:   query,
		index:   index,
		metrics: m,
		opts:    opts,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.Handle("POST /v1/knowledge/query", rt.trafficControl(http.HandlerFunc(rt.queryKnowledge)))
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = recoverMiddleware(rt.logger, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

// trafficControl applies rate limiting, backpressure and the request timeout
// to the query route only; probes and scrapes stay unthrottled.
func (rt *Router) trafficControl(next http.Handler) http.Handler {
	handler := next
	if rt.opts.RequestTimeout > 0 {
		handler = http.TimeoutHandler(handler, rt.opts.RequestTimeout, `{"status":"error","error":"request timed out"}`)
	}
	handler = backpressureMiddlewareWithHook(handler, rt.opts.MaxInFlight, rt.opts.QueueWait, rt.rejected("backpressure"))

	if rt.opts.RateLimitRPS > 0 {
		burst := rt.opts.RateLimitBurst
		if burst <= 0 {
			burst = rt.opts.RateLimitRPS
		}
		handler = rateLimitMiddleware(handler, rate.NewLimiter(rate.Limit(rt.opts.RateLimitRPS), burst), rt.rejected("rate_limit"))
	}
	return handler
}

func (rt *Router) rejected(reason string) func() {
	if rt.metrics == nil {
		return nil
	}
	return func() { rt.metrics.RecordRejected(rt.opts.Service, reason) }
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	if rt.index == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "not_ready", Error: "index reader is not configured"})
		return
	}
	generation, err := rt.index.Generation()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Status: "not_ready", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "generation": generation})
}

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type queryResultItem struct {
	Source   string  `json:"source"`
	ChunkNum int     `json:"chunk_num"`
	Content  string  `json:"content"`
	Score    float64 `json:"score"`
}

type queryResponse struct {
	Status     string            `json:"status"`
	Generation string            `json:"generation,omitempty"`
	Result     string            `json:"result"`
	Results    []queryResultItem `json:"results"`
}

type errorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Result string `json:"result,omitempty"`
}

func (rt *Router) queryKnowledge(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
	if err := dec.Decode(&req); err != nil {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode query request", errors.New("invalid json")))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "query knowledge base", errors.New("query is required")))
		return
	}
	k := req.K
	if k <= 0 {
		k = rt.opts.DefaultK
	}

	result, err := rt.query.Search(r.Context(), req.Query, k)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	items := make([]queryResultItem, 0, len(result.Results))
	for _, res := range result.Results {
		items = append(items, queryResultItem{
			Source:   res.Chunk.Source,
			ChunkNum: res.Chunk.ChunkIndex,
			Content:  res.Chunk.Content,
			Score:    res.Score,
		})
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Status:     string(result.Status),
		Generation: result.Generation,
		Result:     usecase.FormatResult(result),
		Results:    items,
	})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Warn("query_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{
		Status: "error",
		Error:  err.Error(),
		Result: usecase.FormatError(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
