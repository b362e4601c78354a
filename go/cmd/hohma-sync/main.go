package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Riqtu/hohma-sync/go/internal/apiclient"
	"github.com/Riqtu/hohma-sync/go/internal/config"
	"github.com/Riqtu/hohma-sync/go/internal/gamesession"
	"github.com/Riqtu/hohma-sync/go/internal/identity"
	"github.com/Riqtu/hohma-sync/go/internal/models"
	"github.com/Riqtu/hohma-sync/go/internal/notify"
	"github.com/Riqtu/hohma-sync/go/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		configPath = flag.String("config", os.Getenv("HOHMA_CONFIG"), "path to config file")
		sessionID  = flag.String("session", "", "game session id to join")
		kindFlag   = flag.String("kind", "wheel", "session kind: wheel or battle")
		statusAddr = flag.String("status-addr", ":8082", "local status endpoint address")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *sessionID == "" {
		log.Fatal().Msg("-session is required")
	}
	kind := models.SessionKindWheel
	if *kindFlag == "battle" {
		kind = models.SessionKindBattle
	}

	var sink notify.Sink = notify.LogSink{}
	if cfg.Notify.NATSURL != "" {
		natsSink, err := notify.NewNATSSink(notify.NATSSinkConfig{
			URL:           cfg.Notify.NATSURL,
			SubjectPrefix: cfg.Notify.SubjectPrefix,
			MaxReconnects: -1,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect notify sink")
		}
		defer natsSink.Close()
		sink = natsSink
	}

	trCfg := transport.DefaultConfig(cfg.Server.SocketURL)
	trCfg.AuthToken = cfg.Server.AuthToken
	trCfg.HeartbeatInterval = cfg.Sync.HeartbeatInterval.Std()
	trCfg.ConnectionTimeout = cfg.Sync.ConnectionTimeout.Std()
	trCfg.MaxReconnectAttempts = cfg.Sync.ReconnectAttempts
	trCfg.Backoff = transport.Backoff{Min: cfg.Sync.BackoffMin.Std(), Max: cfg.Sync.BackoffMax.Std()}

	client := transport.NewClient(trCfg, nil, sink)
	defer client.Close()

	var api *apiclient.Client
	if cfg.Server.APIBaseURL != "" {
		api = apiclient.NewClient(cfg.Server.APIBaseURL)
		if cfg.Server.AuthToken != "" {
			api.SetToken(cfg.Server.AuthToken)
		}
	}

	user := models.Participant{
		ID:        cfg.User.ID,
		Username:  cfg.User.Username,
		FirstName: cfg.User.FirstName,
		LastName:  cfg.User.LastName,
		AvatarURL: cfg.User.AvatarURL,
	}

	sess := gamesession.New(client, gamesession.Config{
		Kind:      kind,
		SessionID: *sessionID,
		Identity:  identity.Static{User: user},
		API:       api,
		Sink:      sink,
	})
	sess.Start()
	defer sess.Close()

	client.Connect()

	log.Info().
		Str("socket_url", cfg.Server.SocketURL).
		Str("session_id", *sessionID).
		Str("room_id", sess.RoomID()).
		Msg("synchronizer started")

	go serveStatus(*statusAddr, client, sess)
	go logChanges(sess)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
}

func logChanges(sess *gamesession.Session) {
	for change := range sess.Changes() {
		ev := log.Info().Str("change", string(change.Kind))
		if change.Session != nil {
			ev = ev.
				Str("session_id", change.Session.ID).
				Str("status", string(change.Session.Status)).
				Int("round", change.Session.Round).
				Int("remaining", len(change.Session.Items))
		}
		if change.EliminatedItemID != "" {
			ev = ev.Str("eliminated", change.EliminatedItemID)
		}
		if change.WinnerItemID != "" {
			ev = ev.Str("winner", change.WinnerItemID)
		}
		ev.Msg("session changed")
	}
}

func serveStatus(addr string, client *transport.Client, sess *gamesession.Session) {
	r := chi.NewRouter()

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	r.Use(c.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"state":   client.State(),
			"room_id": sess.RoomID(),
		})
	})
	r.Get("/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		cur := sess.Current()
		if cur == nil {
			w.Write([]byte("null"))
			return
		}
		json.NewEncoder(w).Encode(cur)
	})

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Error().Err(err).Msg("status server stopped")
	}
}
