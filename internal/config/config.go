package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
)

const allChains = "*"

type Config struct {
	YieldsURL       string
	Chains          []string
	TopN            int
	DataDir         string
	FetchTimeout    time.Duration
	MaxAttempts     int
	BackoffStep     time.Duration
	LogLevel        slog.Level
	PushgatewayURL  string
	PushgatewayJob  string
	PushgatewayUser string
	PushgatewayPass string
}

func Load() Config {
	cfg := Config{
		YieldsURL:       envOr("YIELDS_URL", "https://yields.llama.fi/pools"),
		Chains:          parseChains(envOr("YIELDS_CHAINS", "Ethereum,Arbitrum,Base,Optimism")),
		TopN:            envInt("YIELDS_TOP_N", 50),
		DataDir:         envOr("DATA_DIR", "data"),
		FetchTimeout:    envDuration("FETCH_TIMEOUT", 25*time.Second),
		MaxAttempts:     envInt("FETCH_MAX_ATTEMPTS", 3),
		BackoffStep:     envDuration("FETCH_BACKOFF_STEP", time.Second),
		LogLevel:        parseLevel(envOr("LOG_LEVEL", "info")),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		PushgatewayJob:  envOr("PUSHGATEWAY_JOB", "yield_snapshot"),
		PushgatewayUser: os.Getenv("PUSHGATEWAY_USER"),
		PushgatewayPass: os.Getenv("PUSHGATEWAY_PASSWORD"),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"PUSHGATEWAY_USER":     &cfg.PushgatewayUser,
		"PUSHGATEWAY_PASSWORD": &cfg.PushgatewayPass,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

// parseChains splits a comma-separated allow-list. "*" allows every chain.
func parseChains(v string) []string {
	if strings.TrimSpace(v) == allChains {
		return nil
	}
	var chains []string
	for _, c := range strings.Split(v, ",") {
		if c = strings.TrimSpace(c); c != "" {
			chains = append(chains, c)
		}
	}
	return chains
}

func parseLevel(v string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("invalid LOG_LEVEL, using info", "value", v)
		return slog.LevelInfo
	}
	return lvl
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid positive integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback.String())
		return fallback
	}
	return d
}
