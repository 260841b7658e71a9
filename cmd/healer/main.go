/*
Copyright 2026 The Codeheal Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command healer is a demo entrypoint wiring the full healing core
// together: config → taxonomy → classifier → orchestrator → retry loop.
// It stands in for a real LLM caller with a deterministic local fixer,
// so the whole pipeline runs end to end without any outbound model
// call — the retry loop's own local code tweak plays the part a model
// response would otherwise play between attempts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/codeheals/codeheal/internal/config"
	"github.com/codeheals/codeheal/pkg/healing/breaker"
	"github.com/codeheals/codeheal/pkg/healing/cascade"
	"github.com/codeheals/codeheal/pkg/healing/chat"
	"github.com/codeheals/codeheal/pkg/healing/classifier"
	"github.com/codeheals/codeheal/pkg/healing/confidence"
	"github.com/codeheals/codeheal/pkg/healing/knowledge"
	"github.com/codeheals/codeheal/pkg/healing/orchestrator"
	"github.com/codeheals/codeheal/pkg/healing/ratelimit"
	"github.com/codeheals/codeheal/pkg/healing/retry"
	"github.com/codeheals/codeheal/pkg/healing/sandbox"
	"github.com/codeheals/codeheal/pkg/healing/taxonomy"
	"github.com/codeheals/codeheal/pkg/shared/logging"
)

func main() {
	configPath := flag.String("config", "", "path to healer YAML config; empty uses built-in defaults")
	sessionID := flag.String("session", "demo-session", "healing session id, used as the rate-limiter key")
	flag.Parse()

	if err := run(*configPath, *sessionID); err != nil {
		fmt.Fprintln(os.Stderr, "healer:", err)
		os.Exit(1)
	}
}

func run(configPath, sessionID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tx, err := loadTaxonomy(cfg.Taxonomy.Path)
	if err != nil {
		return err
	}

	limiter, cleanupLimiter := buildLimiter(cfg)
	defer cleanupLimiter()

	kb, cleanupKB, err := buildKnowledgeBase(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanupKB()

	orch := orchestrator.New(
		cfg.Policy,
		limiter,
		breaker.New(
			breaker.Budget{MaxAttempts: cfg.Policy.MaxSyntaxAttempts, ErrorBudget: cfg.Policy.SyntaxErrorBudget},
			breaker.Budget{MaxAttempts: cfg.Policy.MaxLogicAttempts, ErrorBudget: cfg.Policy.LogicErrorBudget},
		),
		cascade.New(),
		confidence.New(1.0, cfg.Policy.OutcomeHistorySize, cfg.Policy.CalibrationMinSamples),
		buildSandbox(cfg),
		classifier.New(tx),
		kb,
	)

	history := chat.New(os.Stdout)

	in := orchestrator.Input{
		SessionID:  sessionID,
		ErrorClass: orchestrator.ClassSyntax,
		Message:    "SyntaxError: expected ':'",
		PatchCode:  "def add(a, b)\n    return a + b",
		Language:   classifier.Python,
		Logits:     []float64{5, 1, 0},
	}

	logger.Info("starting healing session", logging.WorkflowFields("attempt_with_backoff", sessionID).ToZap()...)

	result, err := retry.AttemptWithBackoff(ctx, orch, history, in, retry.DefaultOptions(sessionID))
	if err != nil {
		logger.Error("healing session failed", logging.NewFields().Component("retry").Error(err).ToZap()...)
		return err
	}

	if result.Envelope == nil {
		// RATE_LIMITED short-circuits before an envelope ever exists.
		logger.Warn("healing session rejected", logging.NewFields().Component("retry").Custom("decision", string(result.Decision)).ToZap()...)
		return nil
	}
	logger.Info("healing session finished",
		logging.EnvelopeFields(result.Envelope.PatchID, len(result.Envelope.Attempts), string(result.Decision)).ToZap()...)
	return nil
}

func loadConfig(path string) (*config.HealerConfig, error) {
	if path == "" {
		return &config.HealerConfig{
			Server:   config.ServerConfig{Port: "8080"},
			Policy:   config.DefaultPolicy(),
			Taxonomy: config.TaxonomyConfig{},
			Storage:  config.StorageConfig{HotTierSize: 100},
			Logging:  config.LoggingConfig{Level: "info"},
		}, nil
	}
	return config.Load(path)
}

func loadTaxonomy(path string) (*taxonomy.Taxonomy, error) {
	if path == "" {
		return taxonomy.Default()
	}
	return taxonomy.LoadFile(path)
}

// buildLimiter wires a Redis-backed sliding-window limiter when a
// storage address is configured, falling back to an always-allow stub
// for a config-free demo run. The returned cleanup closes the Redis
// client, if one was opened.
func buildLimiter(cfg *config.HealerConfig) (ratelimit.Limiter, func()) {
	if cfg.Storage.RedisAddr == "" {
		return demoLimiter{}, func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
	limiter := ratelimit.NewRedisLimiter(client, ratelimit.WithLimit(cfg.Policy.RateLimitPerMin))
	return limiter, func() { client.Close() }
}

// demoLimiter always allows; used only when no rate-limit backend is
// configured for the demo run.
type demoLimiter struct{}

func (demoLimiter) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

// buildKnowledgeBase opens the configured Postgres cold store, falling
// back to the in-process MemoryStore the knowledge package documents as
// the demo backend when no DSN is configured.
func buildKnowledgeBase(ctx context.Context, cfg *config.HealerConfig) (*knowledge.KnowledgeBase, func(), error) {
	hot := knowledge.NewHotTier(cfg.Storage.HotTierSize)

	if cfg.Storage.PostgresDSN == "" {
		return knowledge.New(knowledge.NewMemoryStore(), hot), func() {}, nil
	}

	store, err := knowledge.OpenPostgresStore(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	return knowledge.New(store, hot), func() { store.Close() }, nil
}

// buildSandbox wires a LocalSandbox around a demo runner that grades the
// candidate on the actual content of the patch rather than a scripted
// call count: it passes once the demo's missing-colon bug is gone,
// which the retry loop's own local tweak (not a model call) is what
// fixes it between attempts. This lets a default run exercise RETRY
// before PROMOTE without any external dependency.
func buildSandbox(cfg *config.HealerConfig) sandbox.Sandbox {
	limits := sandbox.DefaultLimits()
	limits.WallClock = cfg.Policy.SandboxWallClock
	limits.MemoryMB = float64(cfg.Policy.SandboxMemoryMB)
	limits.CPUPercent = float64(cfg.Policy.SandboxCPUPercent)

	runner := func(ctx context.Context, req sandbox.Request) (bool, float64, float64, []string, error) {
		return strings.Contains(req.PatchedCode, "def add(a, b):"), 4, 3, nil, nil
	}
	return sandbox.New(sandbox.Isolation(cfg.Policy.SandboxIsolation), limits, runner)
}
