// Package app wires the workspace together: database, config, engine, relay.
package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"bitfit/internal/config"
	"bitfit/internal/db"
	"bitfit/internal/domain"
	"bitfit/internal/engine"
	"bitfit/internal/migrate"
	"bitfit/internal/oracle"
	"bitfit/internal/relay"
	"bitfit/internal/repo"
)

// Context is everything a command needs to talk to the local node.
type Context struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open bootstraps the workspace: database, migrations, config, genesis
// challenges, and the relay. A missing workspace starts empty.
func Open(ctx context.Context, workspace string, log logrus.FieldLogger) (*Context, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	e := engine.New(conn, cfg)
	e.Log = log
	e.Relay = relay.NewService(e.Repo, relay.NewSyntheticSource(cfg), cfg)
	e.Relay.Log = log
	if cfg.Oracle.Enabled && cfg.Oracle.Endpoint != "" {
		e.Oracle = &oracle.HTTPVerifier{
			Endpoint: cfg.Oracle.Endpoint,
			Model:    cfg.Oracle.Model,
			Timeout:  time.Duration(cfg.Oracle.TimeoutSecs) * time.Second,
		}
	}

	if err := seedGenesisChallenges(ctx, e, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{DB: conn, Config: cfg, Engine: e}, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// seedGenesisChallenges inserts the configured catalog challenges that are
// not in the database yet. Seeded challenges start unjoined.
func seedGenesisChallenges(ctx context.Context, e engine.Engine, cfg *config.Config) error {
	now := e.Now
	if now == nil {
		now = time.Now
	}
	for _, g := range cfg.Challenges.Genesis {
		_, err := e.Repo.GetChallenge(ctx, g.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		category := g.Category
		if category == "" {
			category = "genesis"
		}
		recurrence := g.Recurrence
		if recurrence == "" {
			recurrence = "once"
		}
		c := domain.Challenge{
			ID:          g.ID,
			Title:       g.Title,
			Description: g.Description,
			TargetDays:  g.TargetDays,
			Category:    category,
			Recurrence:  recurrence,
			Status:      domain.ChallengeActive,
			CreatedAt:   now().UTC().Format(time.RFC3339),
		}
		if g.RewardSats > 0 {
			reward := g.RewardSats
			c.RewardSats = &reward
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := e.Repo.InsertChallengeTx(ctx, tx, c); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
