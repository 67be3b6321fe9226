package transfer

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"bimbridge/internal/domain"
	"bimbridge/internal/infra/tracer"
)

// Sender delivers one outbound message to the peer.
type Sender interface {
	Send(ctx context.Context, msg domain.OutboundMessage) error
}

// Binder is implemented by senders whose connection can be replaced.
// Bind returns a Sender pinned to the current connection.
type Binder interface {
	Bind() Sender
}

// Bind pins sender to its current connection when it supports that.
func Bind(sender Sender) Sender {
	if b, ok := sender.(Binder); ok {
		return b.Bind()
	}
	return sender
}

// StreamerConfig holds configuration for the Streamer.
type StreamerConfig struct {
	ChunkSize           int     // elements per update frame (default: 100)
	MaxUpdatesPerSecond float64 // update pacing; 0 disables pacing
}

// Streamer sends chunked transfers through a Sender.
type Streamer struct {
	config  StreamerConfig
	limiter *rate.Limiter
	bus     domain.EventBus
	logger  *slog.Logger
}

// NewStreamer creates a Streamer.
func NewStreamer(cfg StreamerConfig, bus domain.EventBus, logger *slog.Logger) *Streamer {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = DefaultChunkSize
	}
	s := &Streamer{config: cfg, bus: bus, logger: logger}
	if cfg.MaxUpdatesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxUpdatesPerSecond), 1)
	}
	return s
}

// Stream sends the full frame sequence for elements in order. It stops at the
// first failed send, so a peer never sees an update or completion after a
// gap. Callers pin sender with Bind so a transfer never continues on a
// connection that did not see its start. The returned error wraps the send
// failure.
func (s *Streamer) Stream(ctx context.Context, sender Sender, projectID json.RawMessage, elements []string) error {
	id := newTransferID()
	total := len(elements)

	ctx, span := tracer.StartSpan(ctx, "transfer.stream")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("transfer.id", id),
		tracer.IntAttr("transfer.total", total),
		tracer.IntAttr("transfer.chunk_size", s.config.ChunkSize),
	)

	s.bus.Publish(ctx, domain.NewEvent(domain.EventTransferStarted, domain.TransferEvent{
		TransferID: id,
		Total:      total,
	}))
	s.logger.Info("transfer started", "transfer_id", id, "total", total)

	sent := 0
	for _, frame := range Frames(projectID, elements, s.config.ChunkSize) {
		update, isUpdate := frame.(domain.FetchProgressUpdate)
		if isUpdate && s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return s.abort(ctx, span, id, total, sent, err)
			}
		}
		if err := sender.Send(ctx, frame); err != nil {
			return s.abort(ctx, span, id, total, sent, err)
		}
		if isUpdate {
			sent = update.ProcessedCount
		}
	}

	tracer.SetOK(span)
	s.bus.Publish(ctx, domain.NewEvent(domain.EventTransferCompleted, domain.TransferEvent{
		TransferID: id,
		Total:      total,
		Sent:       sent,
	}))
	s.logger.Info("transfer completed", "transfer_id", id, "total_sent", sent)
	return nil
}

func (s *Streamer) abort(ctx context.Context, span trace.Span, id string, total, sent int, err error) error {
	err = domain.WrapOp("Transfer.Stream", err)
	tracer.RecordError(span, err)
	s.bus.Publish(context.WithoutCancel(ctx), domain.NewEvent(domain.EventTransferAborted, domain.TransferEvent{
		TransferID: id,
		Total:      total,
		Sent:       sent,
		Error:      err.Error(),
	}))
	s.logger.Warn("transfer aborted", "transfer_id", id, "sent", sent, "total", total, "error", err)
	return err
}

// newTransferID returns a ULID tagging one transfer in logs and events.
func newTransferID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
