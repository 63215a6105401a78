// Package handlers holds the gin handlers for the frontend-facing API.
package handlers

import (
	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/config"
	"github.com/pmerrell/ollamadesk/internal/history"
	"github.com/pmerrell/ollamadesk/internal/llm"
	"github.com/pmerrell/ollamadesk/internal/modelfile"
	"github.com/pmerrell/ollamadesk/internal/project"
	"github.com/pmerrell/ollamadesk/internal/relay"
	"github.com/pmerrell/ollamadesk/internal/store/rabbitmq"
	"github.com/pmerrell/ollamadesk/internal/store/redisstore"
	"github.com/pmerrell/ollamadesk/internal/tuning"
)

// Handler bundles the constructed services. Everything is injected at
// startup; handlers share no ambient state.
type Handler struct {
	Cfg config.Config
	Log *zap.Logger

	LLM        *llm.Client
	Relay      *relay.Relay
	History    *history.Repo
	Modelfiles *modelfile.Service
	Projects   *project.Service
	Tuning     *tuning.Repo

	Rabbit *rabbitmq.Publisher // nil when the queue is not configured
	Cache  *redisstore.Store   // nil when redis is not configured
}
