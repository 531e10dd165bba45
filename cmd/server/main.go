package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/charger-dashboard/cache"
	"github.com/jrsteele09/charger-dashboard/easee"
	"github.com/jrsteele09/charger-dashboard/internal/config"
	"github.com/jrsteele09/charger-dashboard/internal/metrics"
	"github.com/jrsteele09/charger-dashboard/server"
	"github.com/jrsteele09/charger-dashboard/sessions"
	"github.com/jrsteele09/charger-dashboard/sessions/redisrepo"
	"github.com/jrsteele09/charger-dashboard/token"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading .env: %s\n", err)
	}

	for {
		if err := run(); err != nil {
			log.Error().Err(err).Msg("Error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	repo, closer, err := sessionRepo(c)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.Err(err).Msg("[main run] closing session store")
		}
	}()

	sessionManager, err := sessions.NewManager(repo, c.GetSessionSecret(), c.GetSessionMaxAge())
	if err != nil {
		return fmt.Errorf("sessions.NewManager: %w", err)
	}

	factory := easee.NewFactory(easee.Options{
		BaseURL:  c.GetUpstreamBaseURL(),
		Timeout:  c.GetUpstreamTimeout(),
		RetryMax: c.GetUpstreamRetryMax(),
		Recorder: m,
	})
	tokens := token.NewManager(factory.Accounts(), factory, sessionManager, token.WithRecorder(m))

	handler, err := server.New(c, sessionManager, tokens, factory.Accounts(), cache.New(c.GetCacheEnabled(), m), server.WithMetrics(m, reg))
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	// No write timeout, the live update streams stay open.
	server := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go listenAndServe(server)
	waitForStopSignal()
	returnError = shutdown(server)
	return returnError
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == config.EnvDev {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// sessionRepo selects the session store. The returned closer releases its connections.
func sessionRepo(c config.Config) (sessions.Repo, io.Closer, error) {
	if c.GetSessionStore() != config.SessionStoreRedis {
		log.Info().Msg("Using in-memory session store")
		return sessions.NewInMemoryRepo(), io.NopCloser(nil), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         c.GetRedisAddr(),
		Password:     c.GetRedisPassword(),
		DB:           c.GetRedisDB(),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	repo := redisrepo.New(client)
	if err := repo.Ping(context.Background(), 5*time.Second); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			log.Err(closeErr).Msg("[main sessionRepo] closing Redis after ping failure")
		}
		return nil, nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	log.Info().Str("addr", c.GetRedisAddr()).Msg("Using Redis session store")
	return repo, client, nil
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("[main listenAndServe] server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
