package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/logging"
	"github.com/rs/zerolog/log"
)

const credentialTTL = time.Hour

func main() {
	for {
		if err := run(); err != nil {
			log.Err(err).Msg("Error running backend")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("Backend stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		// configuration does not fix itself; retrying would spin
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName() + " Backend")

	keys, err := loadKeys(c)
	if err != nil {
		return err
	}
	srv := backend.New(c.GetEnv(), keys, c.GetBackendIssuer())
	for _, route := range srv.Routes() {
		log.Info().Str("route", route).Msg("Registered route")
	}
	if c.GetEnv() == "DEV" {
		logSampleCredential(keys, c.GetBackendIssuer())
	}

	server := &http.Server{Addr: c.GetBackendPort(), Handler: srv}
	go func() {
		if err := listenAndServe(server); err != nil {
			log.Err(err).Msg("Backend listener failed")
		}
	}()
	waitForStopSignal()
	returnError = shutdown(server)
	return returnError
}

func loadKeys(c config.Config) (*backend.KeyPair, error) {
	path := c.GetBackendPrivateKeyFile()
	if path == "" {
		log.Warn().Msg("BACKEND_PRIVATE_KEY_FILE not set, generating an ephemeral signing key")
		return backend.GenerateRSAKeyPair(c.GetBackendKeyID(), 2048)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	return backend.LoadKeyPairFromPEM(c.GetBackendKeyID(), string(data))
}

// logSampleCredential prints a credential the client can be signed in with
// while no identity provider is running.
func logSampleCredential(keys *backend.KeyPair, issuer string) {
	raw, err := backend.NewIssuer(keys, issuer, credentialTTL).Mint(backend.Identity{
		Subject: "dev-user",
		Email:   "dev@example.com",
		Name:    "Dev User",
		Roles:   []string{"user"},
	})
	if err != nil {
		log.Err(err).Msg("Unable to mint sample credential")
		return
	}
	log.Info().Str("credential", raw).Dur("ttl", credentialTTL).Msg("Sample credential")
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Backend listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
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
