// Package app wires the sync core together: one bus connection, one board
// projection, one polling fallback, one SSE hub.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appetiteclub/liveboard/internal/board"
	"github.com/appetiteclub/liveboard/internal/bus"
	"github.com/appetiteclub/liveboard/internal/config"
	"github.com/appetiteclub/liveboard/internal/notify"
	"github.com/appetiteclub/liveboard/internal/orderclient"
	"github.com/appetiteclub/liveboard/internal/poll"
	"github.com/appetiteclub/liveboard/internal/session"
	"github.com/appetiteclub/liveboard/internal/stream"
	"github.com/appetiteclub/liveboard/internal/web"
)

const (
	AppName    = "liveboard"
	AppVersion = "0.1.0"

	sessionCheckInterval = time.Minute
)

// App encapsulates the liveboard service.
type App struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	sessions *session.Store
	sess     *session.Session
	board    *board.Board
	center   *notify.Center
	conn     *bus.Manager
	router   *bus.Router
	poller   *poll.Scheduler
	hub      *stream.Hub
	server   *http.Server
}

// New creates the application with all dependencies wired.
func New(cfg *config.Config, logger *zap.SugaredLogger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Initialize builds every component and connects them. No I/O starts here;
// Run does that.
func (a *App) Initialize(ctx context.Context) error {
	cfg := a.cfg

	// The session this service holds the bus connection for. Issued by the
	// surrounding platform; the core only reads it.
	a.sessions = session.NewStore(cfg.SessionTTL)
	a.sess = &session.Session{
		ID:           uuid.New().String(),
		UserID:       cfg.UserID,
		Role:         cfg.Role,
		RestaurantID: cfg.RestaurantID,
		Token:        cfg.BusToken,
	}
	if err := a.sessions.Save(a.sess); err != nil {
		return err
	}

	// Order service: the real client, or the in-memory demo set when no
	// service is configured and demo mode is on.
	var svc board.OrderService
	switch {
	case cfg.OrderServiceURL != "":
		svc = orderclient.NewClient(cfg.OrderServiceURL, cfg.BusToken)
	case cfg.DemoSeed:
		a.logger.Infow("order service not configured, serving demo orders")
		svc = newDemoOrderService()
	default:
		return errors.New("LIVEBOARD_ORDER_SERVICE_URL is required unless LIVEBOARD_DEMO is set")
	}

	a.board = board.New(svc, a.logger)

	var alerter notify.Alerter = notify.NoopAlerter{}
	if cfg.AlertsEnabled {
		alerter = notify.SoundAlerter{}
	}
	a.center = notify.NewCenter(notify.NewEventLog(cfg.EventLogCapacity), alerter, a.logger)

	a.hub = stream.NewHub(a.logger)

	// Event flow: bus frame -> router -> center -> board + SSE hub.
	a.center.AddConsumer(func(evt notify.Event) {
		a.board.IngestEvent(ctx, evt)
	})
	a.center.AddConsumer(func(evt notify.Event) {
		e := evt
		a.hub.Broadcast(stream.Update{Type: stream.UpdateEvent, Event: &e})
	})

	// Board changes flow to every mounted surface.
	a.board.WatchOrder("", func(o board.Order) {
		a.hub.Broadcast(stream.Update{Type: stream.UpdateOrder, Order: &o})
	})

	a.conn = bus.NewManager(bus.Options{
		URL:               cfg.NATSURL,
		ReconnectDelay:    cfg.ReconnectDelay,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatMisses:   cfg.HeartbeatMisses,
		RetryCeiling:      cfg.RetryCeiling,
	}, a.logger)

	a.router = bus.NewRouter(a.conn, a.sess, a.logger)
	a.conn.SetOnConnected(func() {
		a.router.Reattach()
		h := a.conn.Health()
		a.hub.Broadcast(stream.Update{Type: stream.UpdateConnectivity, Health: &h})
	})

	// Standing interests of the board surfaces. Unentitled kinds are
	// silently inert, so declaring all four is safe for any role.
	ingest := func(topic string, data []byte) {
		a.center.Ingest(topic, data)
	}
	a.router.Subscribe(bus.KindRestaurantOrders, cfg.RestaurantID, "board", ingest)
	a.router.Subscribe(bus.KindUserInbox, "", "board", ingest)
	a.router.Subscribe(bus.KindAnnouncements, "", "board", ingest)
	a.router.Subscribe(bus.KindOwnerAlerts, "", "board", ingest)

	a.poller = poll.NewScheduler(a.logger)

	sse := stream.NewSSEHandler(a.hub, a.logger)
	handler := web.NewHandler(a.board, a.conn, a.center, sse, a.logger)
	a.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return nil
}

// Run starts the connection loop, the polling fallback and the HTTP server,
// then blocks until ctx is cancelled and everything is torn down.
func (a *App) Run(ctx context.Context) error {
	if err := a.conn.Connect(ctx, a.sess); err != nil {
		return err
	}

	a.poller.Start(ctx, a.board.Refresh, a.cfg.PollInterval)

	go a.watchSession(ctx, sessionCheckInterval)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infow("http server listening", "addr", a.cfg.ListenAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.shutdown()
		return err
	case <-ctx.Done():
		a.shutdown()
		return nil
	}
}

// watchSession tears the bus connection down once the session expires or is
// removed from the store. The HTTP surfaces keep serving the last projection;
// only live updates stop.
func (a *App) watchSession(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.sessions.Get(a.sess.ID); err == nil {
				continue
			}

			a.logger.Infow("session gone, dropping bus connection", "session_id", a.sess.ID)
			a.sessions.Delete(a.sess.ID)
			a.conn.Disconnect()

			h := a.conn.Health()
			a.hub.Broadcast(stream.Update{Type: stream.UpdateConnectivity, Health: &h})
			return
		}
	}
}

func (a *App) shutdown() {
	a.logger.Infow("shutting down")

	a.poller.Stop()
	a.conn.Disconnect()
	a.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Errorw("http shutdown failed", "error", err)
	}
}
