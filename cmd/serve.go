package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kardianos/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"visca-camera/internal/camera"
	"visca-camera/internal/config"
	"visca-camera/internal/metrics"
	"visca-camera/internal/server"
)

const reconnectInterval = 5 * time.Second

var serviceAction string // install, uninstall, start, stop

// program runs the bridge under a service manager or interactively
type program struct {
	cfg    *config.Config
	cam    *camera.Camera
	srv    *server.Server
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *program) run(ctx context.Context) {
	defer close(p.done)

	if p.cfg.Enabled {
		go p.connect(ctx)
	} else {
		log.Info().Int("camera", p.cfg.ID).Msg("camera disabled, not connecting")
	}

	log.Info().
		Str("listen", p.cfg.Server.Listen).
		Str("control", p.cfg.Control.Method).
		Str("camera", p.cfg.Name).
		Msg("visca-camera starting")

	if err := p.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("http server error")
	}
}

// connect retries until the link is first open or ctx is done. Later drops
// are handled by the camera itself.
func (p *program) connect(ctx context.Context) {
	for {
		err := p.cam.Connect(ctx)
		if err == nil {
			log.Info().Int("camera", p.cam.ID()).Msg("camera connected")
			return
		}
		log.Warn().Err(err).Dur("retry", reconnectInterval).Msg("camera connect failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
		}
	}
}

func (p *program) Stop(s service.Service) error {
	log.Info().Msg("shutting down")
	p.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.srv.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}
	// also ends a pending reconnect loop
	if err := p.cam.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("camera disconnect")
	}
	<-p.done
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket bridge and metrics endpoint",
	Long: `Connects to the camera and serves the websocket control bus on /ws,
the preset list on /api/presets and Prometheus metrics on /metrics.
Can be installed as a system service with --service install.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cam, err := loadCamera()
		if err != nil {
			return err
		}

		var opts []server.Option
		if cfg.Server.Metrics {
			collector := metrics.NewCollector(cam, func() float64 { return cam.Silence().Seconds() })
			opts = append(opts, server.WithMetrics(metrics.NewRegistry(collector)))
		}
		srv := server.New(server.Config{
			ListenAddr:      cfg.Server.Listen,
			ControlProtocol: cfg.Control.Method,
		}, cam, opts...)

		prg := &program{cfg: cfg, cam: cam, srv: srv}

		args = []string{"serve", "--log-level", logLevel}
		if cfgFile != "" {
			args = append(args, "--config", cfgFile)
		}
		if logJSON {
			args = append(args, "--log-json")
		}
		s, err := service.New(prg, &service.Config{
			Name:        "visca-camera",
			DisplayName: "VISCA Camera Bridge",
			Description: "Controls a VISCA PTZ camera and exposes it over websocket and Prometheus",
			Arguments:   args,
		})
		if err != nil {
			return err
		}

		if serviceAction != "" {
			if err := service.Control(s, serviceAction); err != nil {
				return fmt.Errorf("failed to %s service: %w", serviceAction, err)
			}
			fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
			return nil
		}

		if service.Interactive() {
			return runInteractive(prg)
		}
		return s.Run()
	},
}

// runInteractive runs the program until SIGINT or SIGTERM
func runInteractive(prg *program) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := prg.Start(nil); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-prg.done:
	}
	return prg.Stop(nil)
}

func init() {
	serveCmd.Flags().StringVar(&serviceAction, "service", "", "control the system service (install, uninstall, start, stop)")
	rootCmd.AddCommand(serveCmd)
}
