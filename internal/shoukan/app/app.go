// Package app wires Shoukan's components together and runs them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/event"

	"github.com/bdobrica/Shoukan/common/trace"
	"github.com/bdobrica/Shoukan/internal/shoukan/access"
	"github.com/bdobrica/Shoukan/internal/shoukan/audit"
	"github.com/bdobrica/Shoukan/internal/shoukan/commands"
	"github.com/bdobrica/Shoukan/internal/shoukan/config"
	"github.com/bdobrica/Shoukan/internal/shoukan/console"
	"github.com/bdobrica/Shoukan/internal/shoukan/conversation"
	"github.com/bdobrica/Shoukan/internal/shoukan/dialogue"
	"github.com/bdobrica/Shoukan/internal/shoukan/matrix"
	"github.com/bdobrica/Shoukan/internal/shoukan/message"
	"github.com/bdobrica/Shoukan/internal/shoukan/orchestrator"
	"github.com/bdobrica/Shoukan/internal/shoukan/provisioning"
	"github.com/bdobrica/Shoukan/internal/shoukan/provisioning/docker"
	"github.com/bdobrica/Shoukan/internal/shoukan/provisioning/memory"
	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
	"github.com/bdobrica/Shoukan/internal/shoukan/store"
)

// drainTimeout bounds how long Stop waits for in-flight turns.
const drainTimeout = 30 * time.Second

const textRateLimited = "⏳ You're sending messages too quickly. Please wait a moment and try again."

// App is the Shoukan application.
type App struct {
	config *config.Config

	store    *store.Store
	client   *provisioning.Client
	convs    *conversation.Store
	engine   *dialogue.Engine
	router   *commands.Router
	gate     *access.Gate
	limiter  *access.RateLimiter
	notifier audit.Notifier
	dispatch *dispatcher

	// Exactly one of matrix and console is set.
	matrix  *matrix.Client
	console *console.Console

	healthServer *HealthServer

	// ctx is the run context; turns handed to the dispatcher use it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the application and all of its components.
func New(cfg *config.Config) (*App, error) {
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	backend, err := newBackend(cfg.Provisioning)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		config:   cfg,
		store:    st,
		gate:     access.NewGate(cfg.AllowedUsers, cfg.AdminUsers),
		limiter:  access.NewRateLimiter(cfg.RateLimit, 0, nil),
		dispatch: newDispatcher(),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	notifiers := audit.Multi{audit.NewStoreNotifier(st)}
	if cfg.Console {
		a.console = console.New(os.Stdin, os.Stdout)
	} else {
		a.matrix, err = matrix.New(&matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       cfg.Matrix.Rooms,
			DB:          st.DB(),
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		if cfg.Matrix.AuditRoom != "" {
			notifiers = append(notifiers, audit.NewMatrixNotifier(a.matrix, cfg.Matrix.AuditRoom))
		}
	}
	a.notifier = notifiers

	a.client = provisioning.NewClient(provisioning.ClientConfig{
		Backend:         backend,
		Recorder:        st,
		Notifier:        a.notifier,
		ResourceGroup:   cfg.Provisioning.ResourceGroup,
		Location:        cfg.Provisioning.Location,
		BreakerFailures: uint32(cfg.Provisioning.BreakerFailures),
		BreakerCooldown: cfg.Provisioning.BreakerCooldown,
	})

	a.convs = conversation.NewStore(conversation.StoreConfig{TTL: cfg.ContextTTL})
	a.engine = dialogue.New(dialogue.Config{
		Store:         a.convs,
		Orchestrator:  orchestrator.New(orchestrator.Config{Provisioner: a.client}),
		Lister:        a.client,
		Gate:          a.gate,
		ResourceGroup: a.client.ResourceGroup(),
	})

	a.router = commands.NewRouter(commands.Prefix)
	commands.NewHandlers(st, a.client, a.gate).Register(a.router)

	if cfg.HTTPAddr != "" {
		a.healthServer = NewHealthServer(cfg.HTTPAddr, &statusSource{store: st, convs: a.convs, client: a.client})
	}

	return a, nil
}

// newBackend builds the simulated cloud and, when enabled, routes container
// instances to Docker.
func newBackend(cfg config.Provisioning) (provisioning.Backend, error) {
	sub := cfg.SubscriptionID
	if sub == "" {
		sub = uuid.NewString()
	}
	mux := provisioning.NewMux(memory.New(memory.Config{
		SubscriptionID: sub,
		Latency:        cfg.SimulatedLatency,
	}))
	if !cfg.EnableDocker {
		return mux, nil
	}

	d, err := docker.New(docker.Config{SubscriptionID: sub, Network: cfg.DockerNetwork})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.EnsureNetwork(ctx); err != nil {
		return nil, fmt.Errorf("docker backend: %w", err)
	}
	mux.Handle(resource.TypeContainerInstance, d)
	slog.Info("docker backend enabled", "network", cfg.DockerNetwork)
	return mux, nil
}

// Run starts every component and blocks until SIGINT or SIGTERM, or until
// the console session ends.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.healthServer != nil {
		if err := a.healthServer.Start(ctx); err != nil {
			slog.Warn("health server failed to start; continuing without it", "err", err)
		}
	}

	if a.console != nil {
		slog.Info("Shoukan console ready; type exit to stop")
		a.console.Print(dialogue.Welcome())
		return a.console.Run(ctx, func(ctx context.Context, text string, reply func(message.Message)) {
			a.HandleTurn(ctx, console.UserID, console.ConversationID, text, reply)
		})
	}

	slog.Info("starting Matrix sync")
	if err := a.matrix.Start(ctx, a.handleMatrixMessage, a.handleMatrixJoin); err != nil {
		return fmt.Errorf("failed to start Matrix client: %w", err)
	}
	if room := a.config.Matrix.AuditRoom; room != "" {
		if err := a.matrix.SendNotice(room, "✅ Shoukan started. Type /shoukan help for commands."); err != nil {
			slog.Warn("failed to announce startup", "room", room, "err", err)
		}
	}

	slog.Info("Shoukan is running; press Ctrl+C to stop")
	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

// Stop stops the sync, waits for in-flight turns, then closes every
// component.
func (a *App) Stop() {
	if a.matrix != nil {
		slog.Info("stopping Matrix client")
		a.matrix.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := a.dispatch.Close(ctx); err != nil {
		slog.Warn("in-flight turns did not finish", "err", err)
	}
	a.cancel()

	if a.healthServer != nil {
		slog.Info("stopping health server")
		a.healthServer.Stop()
	}

	slog.Info("closing database")
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close database", "err", err)
	}
}

// HandleTurn answers one chat message. Operator commands go to the command
// router; everything else is a dialogue turn. reply receives interim and
// final messages in order.
func (a *App) HandleTurn(ctx context.Context, userID, conversationID, text string, reply func(message.Message)) {
	ctx = trace.Ensure(ctx)

	if !a.limiter.Allow(userID) {
		slog.Warn("rate limited", "user", userID, "trace_id", trace.FromContext(ctx))
		reply(message.Text(textRateLimited))
		return
	}

	// Unauthorized users fall through to the engine, which refuses them.
	if a.router.IsCommand(text) && a.gate.IsAuthorized(userID) {
		resp, err := a.router.Route(ctx, text, userID)
		if err != nil {
			reply(message.Text(fmt.Sprintf("❌ Error: %s", err)))
			return
		}
		if resp != "" {
			reply(message.Text(resp))
		}
		return
	}

	r := a.engine.Handle(ctx, dialogue.Turn{
		UserID:         userID,
		ConversationID: conversationID,
		Text:           text,
	}, reply)

	if r.Kind == dialogue.KindPermissionDenied {
		a.notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindAccessDenied,
			Actor:   userID,
			Target:  conversationID,
			Message: "message from a user outside the allowlist",
		})
	}
	reply(r.Message)
}

func (a *App) handleMatrixMessage(_ context.Context, evt *event.Event) {
	content := evt.Content.AsMessage()
	if content == nil {
		return
	}
	sender, room := evt.Sender.String(), evt.RoomID.String()
	text := content.Body

	a.dispatch.Submit(conversation.Key{UserID: sender, ConversationID: room}, func() {
		a.HandleTurn(a.ctx, sender, room, text, func(msg message.Message) {
			if err := a.matrix.Send(a.ctx, room, msg); err != nil {
				slog.Error("failed to send reply", "room", room, "user", sender, "err", err)
			}
		})
	})
}

// handleMatrixJoin greets users who join a served room. The greeting never
// touches conversation state.
func (a *App) handleMatrixJoin(_ context.Context, roomID, userID string) {
	if !a.gate.IsAuthorized(userID) {
		return
	}
	a.dispatch.Submit(conversation.Key{UserID: userID, ConversationID: roomID}, func() {
		if err := a.matrix.Send(a.ctx, roomID, dialogue.Welcome()); err != nil {
			slog.Error("failed to send welcome", "room", roomID, "user", userID, "err", err)
		}
	})
}

// statusSource adapts the store, conversation store and client for the
// health server.
type statusSource struct {
	store  *store.Store
	convs  *conversation.Store
	client *provisioning.Client
}

func (s *statusSource) Ping() error { return s.store.Ping() }

func (s *statusSource) CountRequests(ctx context.Context) (map[resource.Status]int, error) {
	return s.store.CountRequests(ctx)
}

func (s *statusSource) ActiveConversations() int { return s.convs.Len() }
func (s *statusSource) BreakerState() string     { return s.client.BreakerState() }
