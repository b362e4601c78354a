package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Riqtu/hohma-sync/go/internal/simserver"
)

// sectorStore keeps the last synced sector list per room so late joiners
// and reconnecting clients can be replayed the current state.
type sectorStore struct {
	mu      sync.Mutex
	sectors map[string]json.RawMessage
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	addr := flag.String("addr", ":3001", "listen address")
	flag.Parse()

	srv := simserver.NewServer(simserver.DefaultConfig())

	store := &sectorStore{sectors: make(map[string]json.RawMessage)}
	srv.OnEvent("sync:sectors", func(clientID, roomID string, payload json.RawMessage) {
		if roomID == "" {
			return
		}
		store.mu.Lock()
		store.sectors[roomID] = append(json.RawMessage(nil), payload...)
		store.mu.Unlock()
		srv.BroadcastExcept(roomID, "sync:sectors", payload, clientID)
	})
	srv.OnEvent("request:sectors", func(clientID, roomID string, payload json.RawMessage) {
		if roomID == "" {
			var req struct {
				RoomID string `json:"roomId"`
			}
			if json.Unmarshal(payload, &req) != nil || req.RoomID == "" {
				return
			}
			roomID = req.RoomID
		}
		store.mu.Lock()
		sectors, ok := store.sectors[roomID]
		store.mu.Unlock()
		if !ok {
			return
		}
		srv.Broadcast(roomID, "current:sectors", sectors)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Start(ctx)

	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	r.Use(c.Handler)

	r.Handle("/socket.io/", srv.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(srv.Stats())
	})

	httpSrv := &http.Server{Addr: *addr, Handler: r}
	go func() {
		log.Info().Str("addr", *addr).Msg("sim server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("sim server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	httpSrv.Shutdown(context.Background())
}
