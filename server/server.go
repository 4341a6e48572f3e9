package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	v1 "github.com/imrenagi/go-pastefile/api/v1"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Opts struct {
	Config Config
	Files  v1.Files
	// Janitor runs the periodic maintenance when the janitor interval is set.
	Janitor Janitor
}

func New(opts Opts) Server {
	s := Server{
		opts: opts,
	}
	return s
}

type Server struct {
	opts Opts
}

// Run serves the pastefile routes until ctx is done, then drains the
// in-flight requests. It returns the server error when the server stopped
// on its own.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.opts.Config
	log.Info().Msg("starting server")

	prometheusExporter := NewPrometheusExporter(ctx)
	meterShutdownFn := InitMeterProvider(ctx, cfg.ServiceName, prometheusExporter)

	traceShutdownFn := ShutdownFn(func(context.Context) error { return nil })
	if cfg.OTLPEndpoint != "" {
		traceShutdownFn = InitTraceProvider(ctx, cfg.ServiceName, NewOTLPTraceExporter(ctx, cfg.OTLPEndpoint, cfg.ServiceName))
	}

	if s.opts.Janitor != nil && cfg.JanitorDuration() > 0 {
		go RunJanitor(ctx, s.opts.Janitor, cfg.JanitorDuration(), cfg.ExpireDuration())
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	serveErr := s.serve(ctx, listener)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := meterShutdownFn(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown meter provider")
	}
	if err := traceShutdownFn(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown trace provider")
	}
	return serveErr
}

// serve runs the HTTP server on listener until ctx is done or the server
// fails, then drains the in-flight requests. The serve error, if any, is
// returned after the shutdown.
func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler: s.newHTTPHandler(),
		// ReadTimeout covers the whole upload body, so it follows large files.
		ReadTimeout: 10 * time.Minute,
		// WriteTimeout bounds how long a slow client may take to download.
		WriteTimeout: 10 * time.Minute,
		// ReadHeaderTimeout is necessary here to prevent slowloris attacks.
		// https://www.cloudflare.com/learning/ddos/ddos-attack-tools/slowloris/
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting http server on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("http server stopped")
		}
	}

	gracefulShutdownPeriod := 30 * time.Second
	log.Warn().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown http server gracefully")
	}
	log.Warn().Msg("http server gracefully stopped")

	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) newHTTPHandler() http.Handler {
	cfg := s.opts.Config
	ctrl := v1.NewController(s.opts.Files,
		v1.WithDisabledFeatures(cfg.DisabledFeatures()...),
		v1.WithMaxSize(cfg.MaxUploadSize))

	mux := mux.NewRouter()
	mux.Use(
		otelhttp.NewMiddleware("pastefile"),
		LogInterceptor)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/", otelhttp.WithRouteTag("/", ctrl.Upload())).Methods(http.MethodPost)
	mux.Handle("/", otelhttp.WithRouteTag("/", v1.Help(http.StatusOK))).Methods(http.MethodGet)
	mux.Handle("/ls", otelhttp.WithRouteTag("/ls", ctrl.List())).Methods(http.MethodGet)
	mux.Handle("/{file_id}/infos", otelhttp.WithRouteTag("/{file_id}/infos", ctrl.Infos())).Methods(http.MethodGet)
	mux.Handle("/{file_id}", otelhttp.WithRouteTag("/{file_id}", ctrl.Get())).Methods(http.MethodGet)
	mux.Handle("/{file_id}", otelhttp.WithRouteTag("/{file_id}", ctrl.Delete())).Methods(http.MethodDelete)
	mux.NotFoundHandler = LogInterceptor(v1.Help(http.StatusNotFound))

	return otelhttp.NewHandler(mux, "/")
}
