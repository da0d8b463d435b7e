package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"recreo/auth"
	"recreo/community"
	"recreo/config"
	"recreo/db"
	"recreo/drawing"
	"recreo/gateway"
	"recreo/metrics"
	"recreo/pgdata"
	"recreo/session"
	"recreo/supabase"
)

// backend is the set of gateways one deployment offers.
type backend struct {
	identity    gateway.Identity
	data        gateway.Data
	blob        gateway.Blob
	storageBase string
	// authorize rebinds data and blob to a signed-in user's access token.
	authorize func(b *backend, token string)
	close     func()
}

type connector func(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backend, error)

func connectBackend(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &backend{
			identity: auth.NewService(auth.NewRepository(pool), cfg.JWTSecret),
			data:     pgdata.New(pool, pgdata.Tables()...).WithLogger(log),
			close:    pool.Close,
		}, nil

	case config.BackendSupabase:
		client, err := supabase.New(supabase.Config{
			URL:     cfg.SupabaseURL,
			APIKey:  cfg.SupabaseAnonKey,
			Timeout: cfg.HTTPTimeout,
			Logger:  log,
		})
		if err != nil {
			return nil, err
		}
		return &backend{
			identity:    client,
			data:        client,
			blob:        client,
			storageBase: cfg.StorageBase(),
			authorize: func(b *backend, token string) {
				authed := client.WithAccessToken(token)
				b.data = authed
				b.blob = authed
			},
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalid, cfg.Backend)
	}
}

// app is what a command runs against: configuration, logging, the restored
// session and the backend.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	out      *output
	sessions *session.Store
	users    *session.Manager
	backend  *backend
	observer *metrics.Observer
}

func (o *rootOptions) open(ctx context.Context) (*app, error) {
	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := newLogger(cfg, o.Verbose, o.stderr)

	sessions, err := session.Open(cfg.SessionPath)
	if err != nil {
		return nil, err
	}
	b, err := o.connect(ctx, cfg, log)
	if err != nil {
		sessions.Close()
		return nil, err
	}

	users := session.NewManager(sessions, b.identity).WithLogger(log)
	if u, ok, err := users.Restore(ctx); err != nil {
		sessions.Close()
		if b.close != nil {
			b.close()
		}
		return nil, err
	} else if ok && b.authorize != nil && u.AccessToken != "" {
		b.authorize(b, u.AccessToken)
	}

	log.WithFields(logrus.Fields{"backend": cfg.Backend, "session": cfg.SessionPath}).Debug("recreo ready")
	return &app{
		cfg:      cfg,
		log:      log,
		out:      &output{format: o.Format, w: o.stdout},
		sessions: sessions,
		users:    users,
		backend:  b,
		observer: metrics.NewObserver("recreo"),
	}, nil
}

func (a *app) feed() *community.Feed {
	return community.NewFeed(a.backend.data, a.backend.blob, a.users).
		WithLogger(a.log).
		WithObserver(a.observer)
}

func (a *app) gallery() *drawing.Gallery {
	return drawing.NewGallery(a.backend.data, a.backend.blob, a.users).
		WithLogger(a.log).
		WithObserver(a.observer)
}

// Close logs the mutation counters at debug level and releases resources.
func (a *app) Close() {
	if a.log.IsLevelEnabled(logrus.DebugLevel) {
		if summary, err := a.observer.Summary(); err == nil && len(summary) > 0 {
			names := make([]string, 0, len(summary))
			for name := range summary {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				a.log.WithField("value", summary[name]).Debug(name)
			}
		}
	}
	if a.backend.close != nil {
		a.backend.close()
	}
	a.sessions.Close()
}

func newLogger(cfg config.Config, verbose bool, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
