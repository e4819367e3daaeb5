package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/resilience"
)

const (
	DefaultIndexBuiltSubject = "knowledge.index.built"
	DefaultQuerySubject      = "knowledge.query"
	DefaultQueryGroup        = "knowledge-query"
)

// QueryHandler answers one query with the rendered result text.
type QueryHandler func(ctx context.Context, query string, k int) string

// IndexBuiltHandler is called with the generation named by an index event.
type IndexBuiltHandler func(ctx context.Context, generation string) error

type Queue struct {
	conn     *nats.Conn
	subjects Subjects
	executor *resilience.Executor
	logger   *slog.Logger
}

type Subjects struct {
	IndexBuilt string
	Query      string
	QueryGroup string
}

func (s Subjects) withDefaults() Subjects {
	if s.IndexBuilt == "" {
		s.IndexBuilt = DefaultIndexBuiltSubject
	}
	if s.Query == "" {
		s.Query = DefaultQuerySubject
	}
	if s.QueryGroup == "" {
		s.QueryGroup = DefaultQueryGroup
	}
	return s
}

type Options struct {
	Name                 string
	Subjects             Subjects
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string) (*Queue, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	name := options.Name
	if name == "" {
		name = "compliance-knowledge"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subjects: options.Subjects.withDefaults(),
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

type indexBuiltEvent struct {
	Generation  string    `json:"generation"`
	PublishedAt time.Time `json:"published_at"`
}

func (q *Queue) PublishIndexBuilt(ctx context.Context, generation string) error {
	payload, err := json.Marshal(indexBuiltEvent{Generation: generation, PublishedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal index event: %w", err)
	}

	err = q.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := q.conn.Publish(q.subjects.IndexBuilt, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		if err := q.conn.Flush(); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeIndexBuilt delivers every index event to this process. It blocks
// until ctx is done.
func (q *Queue) SubscribeIndexBuilt(ctx context.Context, handler IndexBuiltHandler) error {
	sub, err := q.conn.Subscribe(q.subjects.IndexBuilt, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		generation, err := decodeIndexBuilt(msg.Data)
		if err != nil {
			q.logger.Warn("index_event_invalid", "error", err)
			return
		}
		if err := handler(ctx, generation); err != nil {
			q.logger.Warn("index_event_handler_failed", "generation", generation, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	return q.serveUntilDone(ctx, sub)
}

// ServeQueries answers request/reply queries in a queue group so each request
// is handled by one worker. It blocks until ctx is done.
func (q *Queue) ServeQueries(ctx context.Context, handler QueryHandler) error {
	sub, err := q.conn.QueueSubscribe(q.subjects.Query, q.subjects.QueryGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		reply := answerQuery(ctx, msg.Data, handler)
		if err := msg.Respond([]byte(reply)); err != nil {
			q.logger.Warn("query_reply_failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	return q.serveUntilDone(ctx, sub)
}

// Query sends a query to the workers and returns their rendered reply.
func (q *Queue) Query(ctx context.Context, text string, k int) (string, error) {
	payload, err := json.Marshal(QueryRequest{Query: text, K: k})
	if err != nil {
		return "", fmt.Errorf("marshal query: %w", err)
	}
	msg, err := q.conn.RequestWithContext(ctx, q.subjects.Query, payload)
	if err != nil {
		return "", wrapTemporaryIfNeeded(fmt.Errorf("nats request: %w", err))
	}
	return string(msg.Data), nil
}

func (q *Queue) serveUntilDone(ctx context.Context, sub *nats.Subscription) error {
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// QueryRequest is the request body on the query subject.
type QueryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

func answerQuery(ctx context.Context, data []byte, handler QueryHandler) string {
	var req QueryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return "Error: " + domain.WrapError(domain.ErrInvalidInput, "decode query request", err).Error()
	}
	return handler(ctx, req.Query, req.K)
}

func decodeIndexBuilt(data []byte) (string, error) {
	var event indexBuiltEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", fmt.Errorf("decode index event: %w", err)
	}
	generation := strings.TrimSpace(event.Generation)
	if generation == "" {
		return "", errors.New("index event has no generation")
	}
	return generation, nil
}
