package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/config"
	"github.com/dropDatabas3/portal/internal/kv"
	"github.com/dropDatabas3/portal/internal/metrics"
	"github.com/dropDatabas3/portal/internal/notify"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/dropDatabas3/portal/internal/plans"
	"github.com/dropDatabas3/portal/internal/query"
	"github.com/dropDatabas3/portal/internal/security/tokencipher"
	"github.com/dropDatabas3/portal/internal/session"
	"github.com/dropDatabas3/portal/internal/session/provider"
	"github.com/dropDatabas3/portal/internal/session/refresher"
	"github.com/mitchellh/go-homedir"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app agrupa las dependencias que comparten los comandos.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	out     string
	stdout  io.Writer
	stdin   io.Reader
	storage kv.Store
	client  *api.Client
	cipher  *tokencipher.Cipher
	cache   *query.Cache
	notices *notify.Recorder
	store   *session.Store
	plans   *plans.Service
}

func (a *app) open(ctx context.Context, cfg *config.Config) error {
	a.cfg = cfg
	a.log = logger.Named("cli")
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	storage, err := kv.New(ctx, cfg.KV())
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.storage = storage

	client, err := api.New(cfg.API.BaseURL,
		api.WithTimeout(cfg.APITimeout()),
		api.WithUserAgent("portal-cli/"+version),
		api.WithLogger(logger.Named("api")),
	)
	if err != nil {
		return err
	}
	a.client = client

	a.cipher = tokencipher.New(tokencipher.WithLogger(logger.Named("tokencipher")))
	a.cache = query.New(logger.Named("query"))
	a.notices = notify.NewRecorder(50)
	a.store = session.New(client, storage, a.cipher,
		session.WithStorageKey(cfg.Session.StorageKey),
		session.WithCache(a.cache),
		session.WithNotifier(notify.Multi{notify.NewZap(logger.Named("notify")), a.notices}),
		session.WithTimeout(cfg.APITimeout()),
		session.WithLogger(logger.Named("session")),
	)
	a.store.Hydrate(ctx)
	a.plans = plans.NewService(client, a.store, a.cache)
	return nil
}

func (a *app) close() error {
	if a.storage == nil {
		return nil
	}
	return a.storage.Close()
}

func (a *app) newRefresher() (*refresher.Refresher, error) {
	return refresher.New(refresher.Config{
		Authority: a.client,
		Store:     a.store,
		Interval:  a.cfg.RefreshInterval(),
		Lookahead: a.cfg.RefreshLookahead(),
		Timeout:   a.cfg.APITimeout(),
		Logger:    logger.Named("refresher"),
	})
}

func (a *app) newProvider() (*provider.Provider, error) {
	return provider.New(provider.Config{
		Remote:   a.client,
		Store:    a.store,
		Cache:    a.cache,
		Interval: a.cfg.SyncInterval(),
		Timeout:  a.cfg.APITimeout(),
		Logger:   logger.Named("provider"),
	})
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}

// readLine lee una línea de stdin (passwords sin flag).
func (a *app) readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	s, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func expandPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	return homedir.Expand(p)
}
