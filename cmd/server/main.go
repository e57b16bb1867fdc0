// Command server is the HTTP composition root: it wires the graphql-ws
// legacy protocol handler onto a real WebSocket transport behind echo,
// alongside an optional gqlgen server for the modern protocol and plain
// HTTP GraphQL requests, adapted from the teacher's
// internal/server/{server,graphql}.go.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/99designs/gqlgen/graphql"
	gqlgenhandler "github.com/99designs/gqlgen/graphql/handler"
	gqlgentransport "github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"graphqlws/internal/audit"
	"graphqlws/internal/authhook"
	"graphqlws/internal/config"
	"graphqlws/internal/handler"
	"graphqlws/internal/hooks"
	"graphqlws/internal/logger"
	"graphqlws/internal/session"
	"graphqlws/internal/transport"
	"graphqlws/internal/watermillexec"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	addr := flag.String("addr", ":8080", "listen address")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret for the example onConnect auth hook (disabled if empty)")
	auditPath := flag.String("audit-db", "graphqlws-audit.db", "path to the session audit SQLite database")
	flag.Parse()

	logger.Init(logger.DevelopmentConfig())
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.L().Fatal("loading config", zap.Error(err))
		}
		cfg = loaded
	}

	store, err := audit.Open(*auditPath)
	if err != nil {
		logger.L().Fatal("opening audit store", zap.Error(err))
	}
	defer store.Close()

	exec := watermillexec.New()
	defer exec.Close()

	h := handler.New(handler.Config{
		Executor:          exec,
		Hooks:             buildHooks(*jwtSecret, store),
		KeepAliveInterval: cfg.Subscriptions.KeepAliveInterval,
	})

	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	wsServer := transport.NewServer(h, transport.DefaultConfig(), newSessionID)
	e.GET("/subscriptions-ws", func(c echo.Context) error {
		wsServer.ServeHTTP(c.Response(), c.Request())
		return nil
	})

	// mountGraphQL wires a gqlgen server at /query once an embedding
	// application supplies a compiled graphql.ExecutableSchema; schema
	// compilation itself is out of scope here (spec.md §1 Non-goals), so
	// nothing calls it in this demo binary.
	_ = mountGraphQL

	go func() {
		if err := e.Start(*addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("server stopped", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.L().Warn("graceful shutdown failed", zap.Error(err))
	}
}

func buildHooks(jwtSecret string, store *audit.Store) hooks.Hooks {
	h := hooks.Default()
	h.OnDisconnect = func(ctx context.Context, sess *session.Session, connectionParams json.RawMessage) error {
		store.RecordDisconnect(ctx, sess.ID, connectionParams)
		return nil
	}

	if jwtSecret != "" {
		authorize := authhook.NewJWTConnectHook([]byte(jwtSecret))
		h.OnConnect = func(ctx context.Context, connectionParams json.RawMessage, sess *session.Session) error {
			if err := authorize(ctx, connectionParams, sess); err != nil {
				return err
			}
			store.RecordConnect(ctx, sess.ID, connectionParams)
			return nil
		}
	} else {
		h.OnConnect = func(ctx context.Context, connectionParams json.RawMessage, sess *session.Session) error {
			store.RecordConnect(ctx, sess.ID, connectionParams)
			return nil
		}
	}

	return h
}

// mountGraphQL mounts a gqlgen server at /query, wiring the modern
// graphql-transport-ws protocol alongside this repo's legacy handler,
// adapted from the teacher's internal/server/graphql.go.
func mountGraphQL(e *echo.Echo, schema graphql.ExecutableSchema) {
	srv := gqlgenhandler.New(schema)
	srv.AddTransport(gqlgentransport.Websocket{})
	srv.AddTransport(gqlgentransport.Options{})
	srv.AddTransport(gqlgentransport.GET{})
	srv.AddTransport(gqlgentransport.POST{})
	srv.AddTransport(gqlgentransport.MultipartForm{})

	e.Any("/query", func(c echo.Context) error {
		srv.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

func newSessionID() string {
	return ulid.Make().String()
}
