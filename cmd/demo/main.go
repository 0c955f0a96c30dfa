// Command demo walks through the SDK against a live backend: signup, login,
// profile refresh, and logout, with the session persisted to a local bolt
// file between runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-baas-sdk/client"
	"github.com/jrsteele09/go-baas-sdk/internal/config"
	"github.com/jrsteele09/go-baas-sdk/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	displayAppname("baas sdk")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}

	appKey := os.Getenv("BAAS_APP_KEY")
	appSecret := os.Getenv("BAAS_APP_SECRET")
	if appKey == "" || appSecret == "" {
		return errors.New("BAAS_APP_KEY and BAAS_APP_SECRET must be set")
	}

	sdk, err := client.New(cfg, appKey, appSecret,
		client.WithLogger(logger),
		client.WithBoltStore("demo-sessions.db", os.Getenv("BAAS_STORE_PASSPHRASE")),
	)
	if err != nil {
		return fmt.Errorf("client.New: %w", err)
	}
	defer sdk.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sdk.Ping(ctx); err != nil {
		return err
	}
	logger.Info().Str("instance", sdk.InstanceID()).Msg("backend reachable")

	// A session surviving from a previous run means we are already logged in.
	if active, err := sdk.Users().ActiveUser(ctx); err != nil {
		return err
	} else if active != nil {
		logger.Info().Str("user", active.ID()).Msg("resuming persisted session")
		return walkthrough(ctx, logger, active)
	}

	username := fmt.Sprintf("demo-%d", time.Now().Unix())
	u := sdk.Users().NewUser()

	logger.Info().Str("username", username).Msg("signing up")
	if err := u.Signup(ctx, map[string]any{
		"username": username,
		"password": "demo-password",
		"email":    username + "@example.com",
	}, true); err != nil {
		return fmt.Errorf("signup: %w", err)
	}

	logger.Info().Msg("logging out and back in")
	if _, err := u.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if err := u.Login(ctx, users.Credentials{Username: username, Password: "demo-password"}); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	return walkthrough(ctx, logger, u)
}

func walkthrough(ctx context.Context, logger zerolog.Logger, u *users.User) error {
	if err := u.RefreshProfile(ctx); err != nil {
		return fmt.Errorf("refresh profile: %w", err)
	}
	session := u.Session()
	logger.Info().
		Str("id", session.ID).
		Str("username", session.Username).
		Str("email", session.Email).
		Msg("profile refreshed")

	if _, err := u.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	logger.Info().Msg("logged out, active session cleared")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
