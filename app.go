package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/pagecast/internal/cache"
	"github.com/dgnsrekt/pagecast/internal/document"
	"github.com/dgnsrekt/pagecast/internal/metrics"
	"github.com/dgnsrekt/pagecast/internal/playback"
	"github.com/dgnsrekt/pagecast/internal/prefetch"
	"github.com/dgnsrekt/pagecast/internal/synth"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// options is the reading configuration resolved from flags, environment and
// the config file.
type options struct {
	Engine      synth.EngineConfig
	Synth       synth.Options
	Cache       cache.Config
	Playback    playback.Config
	Lookahead   int
	Store       document.Strategy
	MetricsAddr string
}

func loadOptions(v *viper.Viper) (options, error) {
	var opts options

	r, err := synth.ParseRate(v.GetString("rate"))
	if err != nil {
		return opts, fmt.Errorf("invalid rate: %w", err)
	}

	opts.Store, err = document.ParseStrategy(v.GetString("store"))
	if err != nil {
		return opts, err //nolint:wrapcheck
	}

	opts.Cache = cache.DefaultConfig()
	opts.Cache.Policy, err = cache.ParsePolicy(v.GetString("cache.policy"))
	if err != nil {
		return opts, err //nolint:wrapcheck
	}
	if s := strings.TrimSpace(v.GetString("cache.max_bytes")); s != "" && s != "0" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return opts, fmt.Errorf("invalid cache.max_bytes %q: %w", s, err)
		}
		opts.Cache.MaxBytes = int64(n) //nolint:gosec
	}
	opts.Cache.Compress = v.GetBool("cache.compress")

	opts.Lookahead = v.GetInt("lookahead")
	if opts.Lookahead < 0 {
		return opts, fmt.Errorf("lookahead must not be negative, got %d", opts.Lookahead)
	}
	// keep the prefetched pages in the window
	opts.Cache.Ahead = max(opts.Cache.Ahead, opts.Lookahead)

	opts.Synth = synth.DefaultOptions()
	opts.Synth.MinTextLength = v.GetInt("synth.min_text_length")
	opts.Synth.Timeout = v.GetDuration("synth.timeout")
	opts.Synth.RequestsPerMinute = v.GetInt("synth.requests_per_minute")

	piperModel, err := homedir.Expand(v.GetString("piper.model"))
	if err != nil {
		return opts, fmt.Errorf("unable to expand piper.model: %w", err)
	}
	opts.Engine = synth.EngineConfig{
		Name: v.GetString("engine"),
		GTTS: synth.GTTSConfig{
			Language: v.GetString("gtts.language"),
			Slow:     v.GetBool("gtts.slow"),
		},
		Piper: synth.PiperConfig{
			Binary: v.GetString("piper.binary"),
			Model:  piperModel,
		},
		Google: synth.GoogleConfig{
			LanguageCode: v.GetString("google.language_code"),
			VoiceName:    v.GetString("google.voice_name"),
		},
	}

	opts.Playback = playback.DefaultConfig()
	opts.Playback.Rate = r
	opts.Playback.AutoAdvance = v.GetBool("auto_advance")
	opts.Playback.SkipEmptyPages = v.GetBool("skip_empty_pages")

	opts.MetricsAddr = v.GetString("metrics_addr")
	return opts, nil
}

// app holds the components behind one reading session.
type app struct {
	metrics *metrics.Recorder
	client  *synth.Client
	cache   *cache.SpeechCache
	sched   *prefetch.Scheduler
	ctl     *playback.Controller
	store   document.Strategy
	server  *http.Server
}

func newApp(opts options, engine synth.Engine) (*app, error) {
	rec := metrics.New()

	so := opts.Synth
	so.Metrics = rec
	client := synth.New(engine, so)

	cc := opts.Cache
	cc.Metrics = rec
	c, err := cache.New(cc)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to create speech cache: %w", err)
	}

	sched := prefetch.New(client, c, prefetch.Options{
		Lookahead: opts.Lookahead,
		Metrics:   rec,
	})

	a := &app{
		metrics: rec,
		client:  client,
		cache:   c,
		sched:   sched,
		ctl:     playback.New(c, sched, opts.Playback),
		store:   opts.Store,
	}
	if opts.MetricsAddr != "" {
		a.serveMetrics(opts.MetricsAddr)
	}

	log.Debug("reader ready",
		"engine", engine.Name(),
		"rate", opts.Playback.Rate,
		"lookahead", opts.Lookahead,
		"cache", opts.Cache.Policy,
		"store", opts.Store,
	)
	return a, nil
}

func (a *app) open(path string) (document.Store, error) {
	return document.Open(path, a.store) //nolint:wrapcheck
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)
}

// Close stops playback and background work and releases the engine.
func (a *app) Close() error {
	errs := []error{a.ctl.Close()}
	a.sched.Close()
	errs = append(errs, a.cache.Close(), a.client.Close())

	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		errs = append(errs, a.server.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
