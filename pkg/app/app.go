// Package app wires parley's components together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/teslashibe/parley/internal/config"
	"github.com/teslashibe/parley/internal/httpc"
	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/audioio"
	"github.com/teslashibe/parley/pkg/controller"
	"github.com/teslashibe/parley/pkg/exchange"
	"github.com/teslashibe/parley/pkg/metrics"
	"github.com/teslashibe/parley/pkg/playback"
	"github.com/teslashibe/parley/pkg/recorder"
	"github.com/teslashibe/parley/pkg/render"
	"github.com/teslashibe/parley/pkg/tts"
	"github.com/teslashibe/parley/pkg/web"
)

// App is the parley application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	config *config.Config
	out    io.Writer
	logger *slog.Logger

	// Audio
	sink   audioio.Sink
	synth  tts.Provider
	player *playback.Player
	rec    *recorder.Recorder

	// Session
	exchange   *exchange.Client
	controller *controller.Controller
	terminal   *render.Terminal

	// Observability
	registry  *metrics.Registry
	collector *metrics.Collector

	// Web dashboard
	webServer *web.Server
}

// Option configures an App.
type Option func(*App)

// WithOutput sets where progress lines and the terminal screen go.
func WithOutput(w io.Writer) Option {
	return func(a *App) {
		a.out = w
	}
}

// WithSynthesizer replaces the system speech engines.
func WithSynthesizer(p tts.Provider) Option {
	return func(a *App) {
		a.synth = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// New creates a new application from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = log.Or(a.logger, "app")
	return a, nil
}

// Init initializes all components.
// Call this after New() and before Run().
func (a *App) Init() error {
	fmt.Fprintln(a.out, "🎙️  Parley - turn-based voice sessions")
	fmt.Fprintln(a.out, "======================================")
	fmt.Fprintf(a.out, "🎭 Skin: %s   🌐 Backend: %s\n", a.config.Skin, a.config.BackendURL)

	a.registry = metrics.NewRegistry("")
	a.collector = metrics.NewCollector(a.registry)
	a.collector.OnUpdate(func(t metrics.Turn) {
		a.logger.Info("turn finished", "result", t.Result, "latency", t.FormatLatency())
	})

	fmt.Fprint(a.out, "🔊 Opening speaker... ")
	if err := a.initAudio(); err != nil {
		return fmt.Errorf("audio init: %w", err)
	}
	fmt.Fprintln(a.out, "✅")

	if err := a.initSession(); err != nil {
		return fmt.Errorf("session init: %w", err)
	}

	if addr := a.config.DashboardAddr(); addr != "" {
		a.webServer = web.NewServer(addr, a.controller,
			web.WithProductsDir(a.config.Dashboard.ProductsDir),
			web.WithMetrics(a.registry.Handler()),
			web.WithLogger(a.logger),
		)
		a.controller.AddPresenter(a.webServer)
		fmt.Fprintf(a.out, "🌐 Dashboard: http://localhost%s\n", addr)
	}

	return nil
}

// initAudio opens the speaker and the local speech engines.
func (a *App) initAudio() error {
	sink, err := audioio.NewSink(a.config.Output, a.logger)
	if err != nil {
		return err
	}
	a.sink = sink

	if a.synth == nil {
		chain, err := tts.NewSystem(
			tts.WithRate(a.config.Voice.Rate),
			tts.WithVoice(a.config.Voice.Voice),
			tts.WithLogger(a.logger),
		)
		if err != nil {
			// Remote audio still plays without a local engine.
			a.logger.Warn("no local speech engine", "error", err)
		} else {
			a.synth = chain
		}
	}

	a.player = playback.New(a.sink, a.synth,
		playback.WithLogger(a.logger),
		playback.WithHTTPClient(httpc.NewClient(a.config.RequestTimeout)),
		playback.WithObserver(func(o playback.Outcome) {
			a.registry.RecordPlayback(string(o.Via), o.Status.String(), o.Duration)
		}),
	)
	return nil
}

// initSession builds the recorder, backend client and controller.
func (a *App) initSession() error {
	skin := a.config.SkinValue()

	a.rec = recorder.New(audioio.SourceOpener(a.config.Input, a.logger),
		recorder.WithLogger(a.logger),
	)

	ex, err := exchange.New(a.config.BackendURL, skin,
		exchange.WithHTTPClient(httpc.NewClient(a.config.RequestTimeout)),
		exchange.WithLogger(a.logger),
		exchange.WithObserver(a.registry.RecordRequest),
	)
	if err != nil {
		return err
	}
	a.exchange = ex

	a.terminal = render.NewTerminal(a.out)
	ctl, err := controller.New(skin, a.rec, a.exchange, a.player,
		controller.WithPlayerName(a.config.PlayerName),
		controller.WithMetrics(a.collector),
		controller.WithLogger(a.logger),
		controller.WithPresenter(a.terminal),
	)
	if err != nil {
		return err
	}
	a.controller = ctl
	return nil
}

// Run starts the session loop and the dashboard, then bootstraps the
// session. Blocks until ctx is cancelled or the session reaches its end.
func (a *App) Run(ctx context.Context) error {
	if a.controller == nil {
		return errors.New("app: Run called before Init")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := a.controller.Run(ctx); err != nil {
			a.logger.Error("session loop stopped", "error", err)
		}
	}()

	if a.webServer != nil {
		go func() {
			if err := a.webServer.Run(ctx); err != nil {
				a.logger.Error("dashboard stopped", "error", err)
			}
		}()
	}

	fmt.Fprintln(a.out, "🧠 Connecting to backend...")
	if err := a.controller.Start(ctx); err != nil {
		// The screen already says so. The controller stays idle on a fresh
		// state, so the next tap still records and submits a turn.
		a.logger.Warn("bootstrap failed", "error", err)
	}

	select {
	case <-ctx.Done():
	case <-a.controller.Finished():
		fmt.Fprintln(a.out, "🏁 Session over")
	}

	cancel()
	<-loopDone
	return nil
}

// Controller returns the session controller.
func (a *App) Controller() *controller.Controller {
	return a.controller
}

// Metrics returns the Prometheus registry.
func (a *App) Metrics() *metrics.Registry {
	return a.registry
}

// Shutdown releases audio devices and speech engines.
func (a *App) Shutdown() {
	fmt.Fprintln(a.out, "\n👋 Goodbye!")

	if a.rec != nil {
		a.rec.Cancel()
	}
	if a.player != nil {
		if err := a.player.Close(); err != nil {
			a.logger.Warn("close player", "error", err)
		}
	}
	if a.synth != nil {
		if err := a.synth.Close(); err != nil {
			a.logger.Warn("close speech engine", "error", err)
		}
	}
}
