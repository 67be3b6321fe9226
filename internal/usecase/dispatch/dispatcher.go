// Package dispatch routes peer commands, drained from the bridge queue on the
// main loop, to their handlers.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bimbridge/internal/domain"
	"bimbridge/internal/infra/tracer"
	"bimbridge/internal/usecase/bridge"
	"bimbridge/internal/usecase/serialize"
	"bimbridge/internal/usecase/transfer"
)

// Scheduler is the main context as seen by the dispatcher.
type Scheduler interface {
	Post(task func())
	Every(d time.Duration, fn func()) (stop func())
}

// Config holds configuration for the Dispatcher.
type Config struct {
	PollInterval time.Duration // queue polling period (default: 100ms)
}

// Dispatcher polls the command queue from the main context and runs one
// deferred task per command. Model and selection access happens only inside
// those tasks; outbound sends run on background goroutines.
type Dispatcher struct {
	config     Config
	inbox      *bridge.Queue[domain.InboundCommand]
	store      domain.ModelStore
	selection  domain.SelectionApplier
	serializer *serialize.Serializer
	streamer   *transfer.Streamer
	sender     transfer.Sender
	bus        domain.EventBus
	logger     *slog.Logger

	loop     Scheduler
	inflight sync.WaitGroup

	replyMu  sync.Mutex
	replies  []reply
	replying bool
}

// reply is a queued non-streamed response, pinned to the connection its
// command arrived on.
type reply struct {
	ctx    context.Context
	sender transfer.Sender
	msg    domain.OutboundMessage
}

// Deps groups the collaborators of a Dispatcher.
type Deps struct {
	Inbox      *bridge.Queue[domain.InboundCommand]
	Store      domain.ModelStore
	Selection  domain.SelectionApplier
	Serializer *serialize.Serializer
	Streamer   *transfer.Streamer
	Sender     transfer.Sender
	Bus        domain.EventBus
}

// New creates a Dispatcher.
func New(cfg Config, deps Deps, logger *slog.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Dispatcher{
		config:     cfg,
		inbox:      deps.Inbox,
		store:      deps.Store,
		selection:  deps.Selection,
		serializer: deps.Serializer,
		streamer:   deps.Streamer,
		sender:     deps.Sender,
		bus:        deps.Bus,
		logger:     logger,
	}
}

// Start registers the polling timer on loop. ctx scopes every handler and
// transfer started by this dispatcher. The returned func stops polling.
func (d *Dispatcher) Start(ctx context.Context, loop Scheduler) (stop func()) {
	d.loop = loop
	d.logger.Info("dispatcher started", "poll_interval", d.config.PollInterval)
	return loop.Every(d.config.PollInterval, func() { d.Poll(ctx) })
}

// Poll drains the queue and posts one task per command, in arrival order.
// It must run on the main context.
func (d *Dispatcher) Poll(ctx context.Context) {
	for _, cmd := range d.inbox.DrainAll() {
		d.loop.Post(func() { d.Handle(ctx, cmd) })
	}
}

// Wait blocks until background sends started by handlers have finished or
// ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle routes one command. It must run on the main context.
func (d *Dispatcher) Handle(ctx context.Context, cmd domain.InboundCommand) {
	d.bus.Publish(ctx, domain.NewEvent(domain.EventCommandReceived, map[string]string{"command": cmd.CommandName()}))

	switch c := cmd.(type) {
	case domain.FetchAllElementsChunked:
		d.handleFetch(ctx, c)
	case domain.GetSelection:
		d.handleGetSelection(ctx)
	case domain.SelectElements:
		d.handleSelectElements(ctx, c)
	case domain.Unrecognized:
		d.logger.Info("ignoring unrecognized command", "command", c.Name, "reason", c.Reason)
		d.bus.Publish(ctx, domain.NewEvent(domain.EventCommandIgnored, c))
	default:
		d.logger.Warn("no handler for command", "command", cmd.CommandName())
	}
}

func (d *Dispatcher) handleFetch(ctx context.Context, cmd domain.FetchAllElementsChunked) {
	ctx, span := tracer.StartSpan(ctx, "dispatch.fetch_all_elements")
	defer span.End()

	model, err := d.store.OpenCurrentModel(ctx)
	if errors.Is(err, domain.ErrModelNotFound) {
		d.logger.Warn("fetch requested with no model loaded")
		span.SetAttributes(tracer.IntAttr("elements", 0))
		tracer.SetOK(span)
		d.stream(ctx, cmd.ProjectID, nil)
		return
	}
	if err != nil {
		tracer.RecordError(span, err)
		d.logger.Error("open model failed", "error", err, "code", domain.ErrorCodeOf(err))
		return
	}

	records, err := d.serializer.Records(model)
	if err != nil {
		tracer.RecordError(span, err)
		d.logger.Error("enumerate products failed", "error", err)
		return
	}
	elements, err := serialize.Marshal(records)
	if err != nil {
		tracer.RecordError(span, err)
		d.logger.Error("marshal records failed", "error", err)
		return
	}

	span.SetAttributes(tracer.IntAttr("elements", len(elements)))
	tracer.SetOK(span)
	d.stream(ctx, cmd.ProjectID, elements)
}

// stream hands the transfer to a background goroutine so socket
// back-pressure never stalls the main context. The transfer is pinned to the
// current connection and aborts if that connection goes away.
func (d *Dispatcher) stream(ctx context.Context, projectID json.RawMessage, elements []string) {
	sender := transfer.Bind(d.sender)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		// Failures are logged and published by the streamer.
		_ = d.streamer.Stream(ctx, sender, projectID, elements)
	}()
}

func (d *Dispatcher) handleGetSelection(ctx context.Context) {
	uids := []string{}
	model, err := d.store.OpenCurrentModel(ctx)
	if err != nil {
		d.logger.Warn("selection requested without a readable model", "error", err)
	} else {
		for _, id := range d.selection.CurrentSelection() {
			el, ok := model.LookupByLocalID(id)
			if !ok {
				continue
			}
			if uid, ok := el.UniqueID(); ok && uid != "" {
				uids = append(uids, uid)
			}
		}
	}

	d.bus.Publish(ctx, domain.NewEvent(domain.EventSelectionReported, domain.SelectionEvent{
		Requested: len(uids),
		Resolved:  len(uids),
		UniqueIDs: uids,
	}))
	d.send(ctx, domain.SelectionResponse{UniqueIDs: uids})
}

// send queues a reply. Replies reach the sender in the order their commands
// ran, from a single background goroutine that exits once the queue is empty.
func (d *Dispatcher) send(ctx context.Context, msg domain.OutboundMessage) {
	d.inflight.Add(1)
	d.replyMu.Lock()
	d.replies = append(d.replies, reply{ctx: ctx, sender: transfer.Bind(d.sender), msg: msg})
	start := !d.replying
	d.replying = true
	d.replyMu.Unlock()

	if start {
		go d.flushReplies()
	}
}

func (d *Dispatcher) flushReplies() {
	for {
		d.replyMu.Lock()
		if len(d.replies) == 0 {
			d.replying = false
			d.replyMu.Unlock()
			return
		}
		r := d.replies[0]
		d.replies = d.replies[1:]
		d.replyMu.Unlock()

		if err := r.sender.Send(r.ctx, r.msg); err != nil {
			d.logger.Warn("dropping outbound message", "type", r.msg.MessageType(), "error", err)
		}
		d.inflight.Done()
	}
}

func (d *Dispatcher) handleSelectElements(ctx context.Context, cmd domain.SelectElements) {
	var model domain.Model
	if m, err := d.store.OpenCurrentModel(ctx); err != nil {
		d.logger.Warn("selection change without a readable model; clearing selection", "error", err)
	} else {
		model = m
	}

	resolved := make([]domain.LocalID, 0, len(cmd.UniqueIDs))
	var unresolved []string
	for _, uid := range cmd.UniqueIDs {
		if model == nil {
			unresolved = append(unresolved, uid)
			continue
		}
		el, ok := model.LookupByUniqueID(uid)
		if !ok {
			unresolved = append(unresolved, uid)
			continue
		}
		resolved = append(resolved, el.LocalID())
	}
	if len(unresolved) > 0 {
		d.logger.Info("skipping unknown unique ids", "count", len(unresolved), "unique_ids", unresolved)
	}

	d.selection.ClearSelection()
	rejected := d.selection.SelectByLocalIDs(model, resolved)
	for _, id := range rejected {
		d.logger.Warn("element not in scene", "local_id", id)
	}

	selected := without(resolved, rejected)
	if len(selected) > 0 {
		if setter, ok := d.selection.(domain.ActiveSetter); ok {
			setter.SetActive(selected[0])
		}
		if err := d.selection.FrameSelection(); err != nil {
			d.logger.Debug("framing selection failed", "error", err)
		}
	}

	d.logger.Info("selection applied", "requested", len(cmd.UniqueIDs), "selected", len(selected))
	d.bus.Publish(ctx, domain.NewEvent(domain.EventSelectionApplied, domain.SelectionEvent{
		Requested:  len(cmd.UniqueIDs),
		Resolved:   len(selected),
		Unresolved: unresolved,
	}))
}

// without returns ids minus drop, keeping order.
func without(ids, drop []domain.LocalID) []domain.LocalID {
	if len(drop) == 0 {
		return ids
	}
	skip := make(map[domain.LocalID]bool, len(drop))
	for _, id := range drop {
		skip[id] = true
	}
	out := make([]domain.LocalID, 0, len(ids))
	for _, id := range ids {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}
