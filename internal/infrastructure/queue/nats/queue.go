package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/avelichko/kb-pipeline/internal/infrastructure/resilience"
)

const (
	// queueGroup makes worker replicas share the subscription so each
	// document-changed event is indexed once.
	queueGroup = "indexers"

	connectTimeout = 5 * time.Second
)

type documentChangedEvent struct {
	DocumentID string    `json:"document_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ChangeFeed publishes and consumes document-changed events over a NATS
// subject.
type ChangeFeed struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

func Connect(url, subject string, executor *resilience.Executor) (*ChangeFeed, error) {
	conn, err := nats.Connect(url,
		nats.Name("kb-pipeline"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			slog.Info("nats_reconnected", "url", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &ChangeFeed{conn: conn, subject: subject, executor: executor}, nil
}

func (f *ChangeFeed) PublishDocumentChanged(ctx context.Context, documentID string) error {
	payload, err := json.Marshal(documentChangedEvent{
		DocumentID: documentID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode document-changed event: %w", err)
	}

	publish := func(context.Context) error {
		return f.conn.Publish(f.subject, payload)
	}
	if f.executor != nil {
		return f.executor.Execute(ctx, "nats.publish", publish, classifyNATSError)
	}
	return publish(ctx)
}

// SubscribeDocumentChanged delivers each event's document id to handler.
// Handler errors are logged and the event is dropped; reindexing is
// idempotent, so the next change or a full reindex repairs any miss.
func (f *ChangeFeed) SubscribeDocumentChanged(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := f.conn.QueueSubscribe(f.subject, queueGroup, func(msg *nats.Msg) {
		var event documentChangedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Warn("document_changed_event_malformed", "error", err)
			return
		}
		if event.DocumentID == "" {
			slog.Warn("document_changed_event_missing_id")
			return
		}
		if err := handler(ctx, event.DocumentID); err != nil {
			slog.Error("document_changed_handler_failed", "document_id", event.DocumentID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.subject, err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			slog.Warn("nats_drain_failed", "error", err)
		}
	}()
	return nil
}

func (f *ChangeFeed) Close() {
	if f.conn != nil && !f.conn.IsClosed() {
		f.conn.Close()
	}
}
