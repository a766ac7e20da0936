package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "checkout-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "checkout-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "checkout-dev" {
		t.Errorf("expected pubsub project to follow firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Firestore.TxAttempts != defaultTxAttempts {
		t.Errorf("unexpected tx attempts %d", cfg.Firestore.TxAttempts)
	}
	if cfg.PSP.StripeWebhookTolerance != defaultWebhookTolerance {
		t.Errorf("unexpected webhook tolerance %s", cfg.PSP.StripeWebhookTolerance)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Checkout.DefaultCurrency != "JPY" {
		t.Errorf("expected default currency JPY, got %s", cfg.Checkout.DefaultCurrency)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.Addr)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Security.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_IDLE_TIMEOUT":          "2m",
		"API_FIREBASE_PROJECT_ID":          "checkout-prod",
		"API_FIRESTORE_PROJECT_ID":         "checkout-store",
		"API_FIRESTORE_TX_ATTEMPTS":        "8",
		"API_PSP_STRIPE_WEBHOOK_SECRET":    "secret://stripe/webhook",
		"API_PSP_STRIPE_WEBHOOK_TOLERANCE": "2m",
		"API_PUBSUB_ORDER_EVENTS_TOPIC":    "order-events",
		"API_REDIS_ADDR":                   "redis:6379",
		"API_REDIS_DEDUP_TTL":              "12h",
		"API_IDEMPOTENCY_HEADER":           "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":              "48h",
		"API_CHECKOUT_DEFAULT_CURRENCY":    "usd",
		"API_SECURITY_ENVIRONMENT":         "PROD",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "secret://stripe/webhook" {
			return "whsec_test", nil
		}
		return "", errors.New("unknown")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "checkout-store" || cfg.Firestore.TxAttempts != 8 {
		t.Errorf("unexpected firestore config %+v", cfg.Firestore)
	}
	if cfg.PSP.StripeWebhookSecret != "whsec_test" {
		t.Errorf("expected resolved webhook secret, got %s", cfg.PSP.StripeWebhookSecret)
	}
	if cfg.PSP.StripeWebhookTolerance != 2*time.Minute {
		t.Errorf("unexpected tolerance %s", cfg.PSP.StripeWebhookTolerance)
	}
	if cfg.PubSub.OrderEventsTopic != "order-events" {
		t.Errorf("unexpected topic %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DedupTTL != 12*time.Hour {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" || cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency config %+v", cfg.Idempotency)
	}
	if cfg.Checkout.DefaultCurrency != "USD" {
		t.Errorf("expected upper-cased currency, got %s", cfg.Checkout.DefaultCurrency)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=\"checkout-dot\"\n# comment\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "checkout-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadIgnoresMissingDotEnv(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvFile(filepath.Join(t.TempDir(), "absent.env")),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_FIREBASE_PROJECT_ID": "p"}),
	)
	if err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fields := validation.Fields(); len(fields) != 2 || fields[0] != "Firebase.ProjectID" || fields[1] != "Firestore.ProjectID" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":       "checkout-dev",
		"API_PSP_STRIPE_WEBHOOK_SECRET": "sm://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("expected legacy scheme to be normalised, got %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "checkout-dev"}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeWebhookSecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "PSP.StripeWebhookSecret" {
		t.Fatalf("unexpected names %v", names)
	}
	if want := redactSecretName("PSP.StripeWebhookSecret"); err.Error() != "missing required secrets ["+want+"]" {
		t.Fatalf("expected redacted message, got %q", err.Error())
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}
	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv value, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env value, got %s", got)
	}
}

func TestParseKeyValueList(t *testing.T) {
	got := ParseKeyValueList("Prod=checkout-prod, stg = checkout-stg,broken,=x")
	if len(got) != 2 || got["prod"] != "checkout-prod" || got["stg"] != "checkout-stg" {
		t.Fatalf("unexpected map %v", got)
	}
}
