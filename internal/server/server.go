// Package server orchestrates all components: COMMS client, catalog, dispatcher,
// introspection provider, announcements, optional DB, HTTP health.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/datatype-introspection/internal/config"
	"github.com/morezero/datatype-introspection/pkg/bootstrap"
	"github.com/morezero/datatype-introspection/pkg/commsutil"
	"github.com/morezero/datatype-introspection/pkg/datatype"
	"github.com/morezero/datatype-introspection/pkg/db"
	"github.com/morezero/datatype-introspection/pkg/dispatcher"
	"github.com/morezero/datatype-introspection/pkg/events"
	"github.com/morezero/datatype-introspection/pkg/introspection"
	"github.com/morezero/datatype-introspection/pkg/registry"
)

const logPrefix = "server:server"

// Server is the introspectd orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	repo       *db.Repository
	httpServer *http.Server
	httpAddr   string

	reg      *registry.Registry
	disp     *dispatcher.Dispatcher
	provider *introspection.Provider
	peers    *PeerTable

	publisher   events.Publisher
	announceID  datatype.ID
	hasAnnounce bool
	subs        []*comms.Subscription
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting introspectd as %s", logPrefix, cfg.NodeName))

	s, err := Start(context.Background(), cfg)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// Start brings a node up: connect, load and freeze the catalog, bind the
// introspection services, subscribe, announce and serve HTTP. On error everything
// already started is torn down.
func Start(ctx context.Context, cfg *config.Config) (*Server, error) {
	runCtx, cancel := context.WithCancel(ctx)
	s := &Server{cfg: cfg, cancel: cancel, peers: NewPeerTable(cfg.NodeName)}

	if err := s.start(runCtx); err != nil {
		s.Shutdown(context.Background())
		return nil, err
	}

	slog.Info(fmt.Sprintf("%s - introspectd is ready on %s", logPrefix, cfg.IntrospectionSubject()))
	return s, nil
}

func (s *Server) start(ctx context.Context) error {
	cfg := s.cfg

	// Step 1: Connect to COMMS
	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.NodeName})
	if err != nil {
		return err
	}
	s.nc = nc

	// Step 2: Connect to database when configured
	if cfg.UsesDatabase() {
		if err := s.openDatabase(ctx); err != nil {
			return err
		}
	}

	// Step 3: Load and freeze the catalog
	reg, err := s.loadCatalog(ctx)
	if err != nil {
		return err
	}
	s.reg = reg

	// Step 4: Dispatcher and introspection services
	s.disp = dispatcher.NewDispatcher(reg)
	s.provider = introspection.NewProvider(introspection.NewProviderParams{
		Types:     reg,
		Status:    s.disp,
		Registrar: s.disp,
	})
	if err := s.provider.Start(); err != nil {
		return fmt.Errorf("%s - failed to start introspection provider: %w", logPrefix, err)
	}

	// Step 5: Serve requests
	subject := cfg.IntrospectionSubject()
	sub, err := nc.Subscribe(subject, s.handleRequest(ctx))
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	s.subs = append(s.subs, sub)
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))

	// Step 6: Announcements
	if err := s.startAnnouncements(ctx); err != nil {
		return err
	}

	// Step 7: HTTP
	return s.startHTTP()
}

func (s *Server) openDatabase(ctx context.Context) error {
	cfg := s.cfg
	if cfg.RunMigrations {
		if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
			return err
		}
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if cfg.RunMigrations {
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	s.repo = db.NewRepository(pool)
	return nil
}

func (s *Server) loadCatalog(ctx context.Context) (*registry.Registry, error) {
	var src registry.DescriptorSource
	switch s.cfg.CatalogSource {
	case config.CatalogSourceDatabase:
		src = s.repo
	default:
		cat, err := bootstrap.LoadCatalog(s.cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to load catalog: %w", logPrefix, err)
		}
		if err := cat.CheckVersion(s.cfg.CatalogVersionConstraint); err != nil {
			return nil, err
		}
		src = cat
	}

	reg := registry.New()
	n, err := reg.LoadFrom(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to register catalog: %w", logPrefix, err)
	}
	reg.Freeze()
	slog.Info(fmt.Sprintf("%s - Catalog frozen with %d types (%s source)", logPrefix, n, s.cfg.CatalogSource))
	return reg, nil
}

// handleRequest decodes the envelope, applies the per-request deadline, dispatches
// and responds.
func (s *Server) handleRequest(ctx context.Context) comms.MsgHandler {
	return func(msg *comms.Msg) {
		var req dispatcher.ServiceRequest
		if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			s.respond(msg, dispatcher.InvalidRequest())
			return
		}

		reqCtx, cancel := requestContext(ctx, req.Ctx, s.cfg.RequestTimeout)
		defer cancel()

		s.respond(msg, s.disp.Dispatch(reqCtx, &req))
	}
}

func (s *Server) respond(msg *comms.Msg, resp *dispatcher.ServiceResponse) {
	if msg.Reply == "" {
		return
	}
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, msg.Reply, err))
	}
}

// requestContext bounds a request by limit, or by the caller's deadline when that
// is shorter.
func requestContext(parent context.Context, inv *dispatcher.InvocationContext, limit time.Duration) (context.Context, context.CancelFunc) {
	timeout := limit
	if inv != nil {
		ms := inv.DeadlineMs
		if ms <= 0 {
			ms = inv.TimeoutMs
		}
		if ms > 0 && time.Duration(ms)*time.Millisecond < timeout {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return context.WithTimeout(parent, timeout)
}

func (s *Server) startAnnouncements(ctx context.Context) error {
	if desc, ok := s.reg.FindByName(events.AnnouncementType); ok && desc.Kind == datatype.KindMessage {
		s.announceID = desc.ID
		s.hasAnnounce = true
	} else {
		slog.Warn(fmt.Sprintf("%s - %s is not in the catalog, announcing without usage status", logPrefix, events.AnnouncementType))
	}

	sub, err := events.SubscribeAnnouncements(s.nc, s.cfg.AnnounceSubject, func(remote *events.CatalogAnnouncement) {
		s.peers.Observe(s.announcement(), remote)
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	if s.hasAnnounce {
		s.disp.AddSubscriber(s.announceID)
	}

	if s.publisher == nil {
		s.publisher = events.NewCommsPublisher(s.nc, &events.CommsPublisherOpts{SubjectPrefix: s.cfg.AnnounceSubject})
	}
	if s.hasAnnounce {
		s.disp.AddPublisher(s.announceID)
	}

	s.wg.Add(1)
	go s.announceLoop(ctx)
	return nil
}

// announcement describes this node's catalog.
func (s *Server) announcement() *events.CatalogAnnouncement {
	return &events.CatalogAnnouncement{
		Node:             s.cfg.NodeName,
		MessageSignature: s.reg.Aggregate(datatype.KindMessage),
		ServiceSignature: s.reg.Aggregate(datatype.KindService),
		MessageCount:     s.reg.Count(datatype.KindMessage),
		ServiceCount:     s.reg.Count(datatype.KindService),
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Server) announceLoop(ctx context.Context) {
	defer s.wg.Done()

	s.announce(ctx)
	if s.cfg.AnnounceInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.announce(ctx)
		}
	}
}

func (s *Server) announce(ctx context.Context) {
	if err := s.publisher.PublishAnnouncement(ctx, s.announcement()); err != nil {
		slog.Warn(fmt.Sprintf("%s - announcement failed: %v", logPrefix, err))
	}
}

func (s *Server) startHTTP() error {
	addr := s.cfg.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, addr, err)
	}
	s.httpAddr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, s.httpAddr))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	return nil
}

// HTTPAddr returns the address the HTTP server is bound to.
func (s *Server) HTTPAddr() string {
	return s.httpAddr
}

// Peers returns the peer agreement table.
func (s *Server) Peers() *PeerTable {
	return s.peers
}

// Shutdown stops announcing, unbinds the services and closes connections. It is
// safe on a partially started server.
func (s *Server) Shutdown(ctx context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Debug(fmt.Sprintf("%s - unsubscribe %s: %v", logPrefix, sub.Subject, err))
		}
	}
	s.subs = nil

	if s.disp != nil && s.hasAnnounce {
		s.disp.RemovePublisher(s.announceID)
		s.disp.RemoveSubscriber(s.announceID)
	}
	if s.provider != nil {
		s.provider.Stop()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
