// Command devtoken mints a host token signed with AUTH_JWT_SECRET, for local testing
// against a server that verifies tokens with the same secret.
//
// Usage:
//
//	devtoken -sub user_123 -name "Selam"
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mmynk/ubupresent/internal/auth"
	"github.com/mmynk/ubupresent/internal/config"
	"github.com/mmynk/ubupresent/internal/models"
	"github.com/mmynk/ubupresent/pkg/logging"
)

func main() {
	sub := flag.String("sub", "", "user id to put in the token subject (required)")
	name := flag.String("name", "", "display name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "text")
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *sub == "" {
		flag.Usage()
		os.Exit(2)
	}

	m := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	token, err := m.Generate(models.Principal{ID: *sub, Name: *name})
	if err != nil {
		slog.Error("Failed to generate token", "error", err)
		os.Exit(1)
	}
	slog.Debug("Token generated", "sub", *sub, "ttl", cfg.Auth.TokenTTL)
	fmt.Println(token)
}
