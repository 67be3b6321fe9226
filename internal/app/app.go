// Package app assembles the bridge: model store, selection, socket service,
// main loop and command dispatcher, all sharing one event bus.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"bimbridge/internal/adapter/selection"
	"bimbridge/internal/adapter/socket"
	"bimbridge/internal/domain"
	"bimbridge/internal/infra/config"
	"bimbridge/internal/infra/logger"
	"bimbridge/internal/usecase/bridge"
	"bimbridge/internal/usecase/dispatch"
	"bimbridge/internal/usecase/eventbus"
	"bimbridge/internal/usecase/mainloop"
	"bimbridge/internal/usecase/serialize"
	"bimbridge/internal/usecase/transfer"
)

// Option configures an App.
type Option func(*App)

// WithStore serves the model from s instead of the configured driver.
func WithStore(s domain.ModelStore) Option {
	return func(a *App) { a.store = s }
}

// App is one running bridge instance.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	bus        *eventbus.Bus
	store      domain.ModelStore
	closeStore func() error
	selection  *selection.Set
	socket     *socket.Service
	loop       *mainloop.Loop
	dispatcher *dispatch.Dispatcher

	unwatch func()
}

// New wires every component from cfg. Nothing touches the network until Run.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, logger: log, closeStore: func() error { return nil }}
	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		s, closer, err := openStore(cfg.Store, logger.Component(log, "store"))
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		a.store, a.closeStore = s, closer
	}

	a.bus = eventbus.New(logger.Component(log, "eventbus"))
	inbox := bridge.New[domain.InboundCommand]()

	a.selection = selection.NewSet(selection.PhysicalOnly)
	a.socket = socket.NewService(socket.Config{
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		SendQueueSize:    cfg.Connection.SendQueueSize,
		ReadLimit:        cfg.Connection.ReadLimit,
	}, inbox, a.bus, logger.Component(log, "socket"))
	a.loop = mainloop.New(logger.Component(log, "mainloop"))

	streamer := transfer.NewStreamer(transfer.StreamerConfig{
		ChunkSize:           cfg.Transfer.ChunkSize,
		MaxUpdatesPerSecond: cfg.Transfer.MaxUpdatesPerSecond,
	}, a.bus, logger.Component(log, "transfer"))

	a.dispatcher = dispatch.New(dispatch.Config{
		PollInterval: cfg.Dispatcher.PollInterval,
	}, dispatch.Deps{
		Inbox:      inbox,
		Store:      a.store,
		Selection:  a.selection,
		Serializer: serialize.New(logger.Component(log, "serializer")),
		Streamer:   streamer,
		Sender:     a.socket,
		Bus:        a.bus,
	}, logger.Component(log, "dispatch"))

	a.unwatch = a.bus.Subscribe(domain.EventConnectionStateChanged, a.showStatus)
	return a, nil
}

// Run starts the main loop and connects to the configured peer. It returns
// when ctx is done or the loop fails; a cancelled ctx is a clean exit.
func (a *App) Run(ctx context.Context) error {
	stop := a.dispatcher.Start(ctx, a.loop)
	defer stop()

	if err := a.socket.Connect(a.cfg.Connection.URI); err != nil {
		return err
	}

	err := a.loop.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Reconnect drops the current connection, if any, and dials again.
func (a *App) Reconnect() error {
	a.socket.Close()
	return a.socket.Connect(a.cfg.Connection.URI)
}

// Status returns the connection status for display.
func (a *App) Status() domain.ConnectionStatus {
	return a.socket.Status()
}

// Bus returns the event bus shared by every component.
func (a *App) Bus() domain.EventBus { return a.bus }

// Selection returns the selection applier.
func (a *App) Selection() *selection.Set { return a.selection }

// Shutdown closes the connection and waits for background work, then
// releases the bus and the store. Call it after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	a.socket.Close()

	var errs []error
	if err := a.socket.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("socket: %w", err))
	}
	if err := a.dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	a.unwatch()
	a.bus.Close()
	if err := a.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) showStatus(_ context.Context, event domain.Event) {
	var ev domain.ConnectionEvent
	if err := json.Unmarshal(event.Payload, &ev); err != nil {
		a.logger.Debug("undecodable status event", "error", err)
		return
	}
	attrs := []any{"state", string(ev.State), "uri", ev.URI}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.State == domain.StateFailed {
		a.logger.Warn("connection status", attrs...)
		return
	}
	a.logger.Info("connection status", attrs...)
}
