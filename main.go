package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"whiteboard-server/auth"
	"whiteboard-server/core"
	"whiteboard-server/handlers/api/canvases"
	"whiteboard-server/handlers/websocket"
	authMiddleware "whiteboard-server/middleware"
	"whiteboard-server/session"
	"whiteboard-server/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func setupRouter(store core.CanvasStore) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "Host", "Connection", "Accept-Encoding", "Accept-Language", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api/v2", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.AuthJWT)
			r.Route("/canvases", func(r chi.Router) {
				r.Post("/", canvases.HandleCreate(store))
				r.Get("/", canvases.HandleList(store))
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", canvases.HandleGet(store))
					r.Put("/share", canvases.HandleShare(store))
					r.Delete("/", canvases.HandleDelete(store))
				})
			})
		})
	})

	return r
}

func sessionIdleTTL() time.Duration {
	raw := os.Getenv("SESSION_IDLE_TTL")
	if raw == "" {
		return session.DefaultIdleTTL
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		logrus.WithField("value", raw).Warn("Invalid SESSION_IDLE_TTL, using default")
		return session.DefaultIdleTTL
	}
	return ttl
}

func waitForShutdown(srv *socketio.Server, persister *session.Persister, stopSweeper func()) {
	exit := make(chan struct{})
	signalC := make(chan os.Signal, 1)

	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range signalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")
	srv.Close(nil)
	stopSweeper()
	persister.Flush()
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	auth.Init()
	store := stores.GetStore()

	sessions := session.NewRegistry(sessionIdleTTL())
	stopSweeper := sessions.StartSweeper(time.Minute)
	persister := session.NewPersister(store)
	gateway := websocket.NewGateway(store, sessions, persister)

	r := setupRouter(store)
	srv := websocket.SetupSocketIO(gateway)
	r.Mount("/socket.io/", srv.ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(srv, persister, stopSweeper)
}
