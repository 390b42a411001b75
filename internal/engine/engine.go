package engine

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"reactboard/internal/logging"
	"reactboard/internal/registry"
	"reactboard/internal/repo"
	"reactboard/internal/slack"
)

// Engine owns event processing and the task ledger. One instance serves
// every workspace; tenancy is carried on each call.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Registry *registry.Registry
	Slack    slack.Client
	Now      func() time.Time

	log zerolog.Logger
}

func New(db *sql.DB, reg *registry.Registry, client slack.Client) *Engine {
	return &Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Registry: reg,
		Slack:    client,
		Now:      time.Now,
		log:      logging.Component("engine"),
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}
