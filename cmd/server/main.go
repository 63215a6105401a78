package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/config"
	"github.com/pmerrell/ollamadesk/internal/db"
	"github.com/pmerrell/ollamadesk/internal/history"
	"github.com/pmerrell/ollamadesk/internal/httpapi"
	"github.com/pmerrell/ollamadesk/internal/httpapi/handlers"
	"github.com/pmerrell/ollamadesk/internal/llm"
	"github.com/pmerrell/ollamadesk/internal/logging"
	"github.com/pmerrell/ollamadesk/internal/modelfile"
	"github.com/pmerrell/ollamadesk/internal/project"
	"github.com/pmerrell/ollamadesk/internal/relay"
	"github.com/pmerrell/ollamadesk/internal/store/rabbitmq"
	"github.com/pmerrell/ollamadesk/internal/store/redisstore"
	"github.com/pmerrell/ollamadesk/internal/tuning"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("opening database", zap.Error(err))
	}

	client := llm.NewClient(cfg.OllamaBaseURL)
	repo := history.NewRepo(gdb)
	recorder := history.NewRecorder(gdb, log)

	var rabbit *rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		rabbit, err = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			// Chat works without the queue; only /tune needs it.
			log.Warn("rabbitmq unavailable, tuning disabled", zap.Error(err))
			rabbit = nil
		} else {
			defer rabbit.Close()
		}
	}

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer cache.Close()

	h := &handlers.Handler{
		Cfg:        cfg,
		Log:        log,
		LLM:        client,
		Relay:      relay.New(client, recorder, log),
		History:    repo,
		Modelfiles: modelfile.NewService(gdb, client, log),
		Projects:   project.NewService(gdb, cfg.DataDir, log),
		Tuning:     tuning.NewRepo(gdb),
		Rabbit:     rabbit,
		Cache:      cache,
	}

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(h, log)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
