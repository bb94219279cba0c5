package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentplexus/omnivoice-intake/callsystem"
	"github.com/agentplexus/omnivoice-intake/faq"
	"github.com/agentplexus/omnivoice-intake/flow"
	"github.com/agentplexus/omnivoice-intake/internal/client"
	"github.com/agentplexus/omnivoice-intake/internal/config"
	"github.com/agentplexus/omnivoice-intake/internal/logger"
	"github.com/agentplexus/omnivoice-intake/internal/metrics"
	"github.com/agentplexus/omnivoice-intake/server"
	"github.com/agentplexus/omnivoice-intake/store"
	"github.com/agentplexus/omnivoice-intake/stt"
	"github.com/agentplexus/omnivoice-intake/ticket"
	"github.com/agentplexus/omnivoice-intake/transport"
	"github.com/agentplexus/omnivoice-intake/tts"
)

const shutdownTimeout = 20 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and media stream server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Path to a YAML config file")
	serveCmd.Flags().String("env-file", ".env", "Environment file loaded when present")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("verbose") {
		logger.Configure(cfg.Logging.Level, cfg.Logging.Format)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics.Register(prometheus.DefaultRegisterer)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(engine, transport.New()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "addr", cfg.ListenAddr, "mode", cfg.Mode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked media sockets are not tracked by Shutdown; the engine
		// closes them when it tears calls down.
		herr := httpServer.Shutdown(sctx)
		eerr := engine.Close(sctx)
		return errors.Join(herr, eerr)
	})
	return g.Wait()
}

// buildEngine wires the engine's collaborators from cfg. Collaborators
// without credentials are left out and their work is skipped at runtime.
func buildEngine(ctx context.Context, cfg *config.Config) (*callsystem.Engine, func(), error) {
	var opts []callsystem.Option
	cleanup := func() {}

	actions, err := client.New(&client.Config{
		APIKey:    cfg.Telephony.APIKey,
		BaseURL:   cfg.Telephony.BaseURL,
		RateLimit: cfg.Telephony.RateLimit,
	})
	switch {
	case errors.Is(err, client.ErrMissingAPIKey):
		logger.Warn("TELNYX_API_KEY not set, call control actions will be skipped")
	case err != nil:
		return nil, nil, err
	default:
		opts = append(opts,
			callsystem.WithActions(actions),
			callsystem.WithSpeaker(tts.New(actions,
				tts.WithVoice(cfg.Speech.Voice),
				tts.WithLanguage(cfg.Speech.Language))),
		)
	}

	transcriber, err := stt.New(
		stt.WithAPIKey(cfg.Transcription.APIKey),
		stt.WithBaseURL(cfg.Transcription.URL),
		stt.WithModel(cfg.Transcription.Model),
		stt.WithLanguage(cfg.Transcription.Language),
	)
	switch {
	case errors.Is(err, stt.ErrMissingAPIKey):
		logger.Warn("DEEPGRAM_API_KEY not set, media streams will be rejected")
	case err != nil:
		return nil, nil, err
	default:
		opts = append(opts, callsystem.WithTranscriber(transcriber))
	}

	opts = append(opts,
		callsystem.WithContextFetcher(faq.NewClient(&faq.ClientConfig{
			BaseURL: cfg.Dashboard.URL,
			Token:   cfg.Dashboard.Token,
		})),
		callsystem.WithTicketSubmitter(ticket.NewClient(&ticket.ClientConfig{
			URL:   cfg.Tickets.URL,
			Token: cfg.Tickets.Token,
		})),
	)

	if cfg.Redis.URL != "" {
		cache, err := store.NewRedisContextCacheFromURL(cfg.Redis.URL,
			store.WithTTL(cfg.Redis.TTL),
			store.WithPrefix(cfg.Redis.Prefix))
		if err != nil {
			return nil, nil, err
		}
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := cache.Ping(pctx); err != nil {
			_ = cache.Close()
			return nil, nil, fmt.Errorf("redis unavailable: %w", err)
		}
		logger.Info("using redis context cache")
		opts = append(opts, callsystem.WithContextCache(cache))
		cleanup = func() { _ = cache.Close() }
	}

	var script *flow.Script
	if cfg.ScriptPath != "" {
		data, err := os.ReadFile(cfg.ScriptPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read flow script: %w", err)
		}
		script, err = flow.ParseScript(data)
		if err != nil {
			return nil, nil, err
		}
	}

	return callsystem.New(engineConfig(cfg, script), opts...), cleanup, nil
}

func engineConfig(cfg *config.Config, script *flow.Script) callsystem.Config {
	return callsystem.Config{
		Mode:         cfg.Mode,
		ReplyTimeout: cfg.Timing.ReplyTimeout,
		Timing: flow.Timing{
			FinalizeSilence: cfg.Timing.FinalizeSilence,
			MaxListen:       cfg.Timing.MaxListen,
			DuplicateWindow: cfg.Timing.DuplicateWindow,
			AnchorMaxListen: cfg.Timing.AnchorMaxListen,
		},
		Script:         script,
		StreamURL:      cfg.Telephony.PublicStreamURL,
		ActionTimeout:  cfg.Timing.ActionTimeout,
		FetchTimeout:   cfg.Timing.FetchTimeout,
		TicketTimeout:  cfg.Timing.TicketTimeout,
		EndedRetention: cfg.Timing.EndedRetention,
	}
}
