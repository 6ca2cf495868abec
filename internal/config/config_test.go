package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("KAFKA_ADDR", "k1:9092, k2:9092")
	t.Setenv("REQUIRE_PAYMENT", "false")
	t.Setenv("ORDER_STALE_AFTER", "30m")
	t.Setenv("RAZORPAY_KEY_ID", "rzp_test_key")
	t.Setenv("RAZORPAY_KEY_SECRET", "shh")

	c := Load()
	if c.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q", c.HTTPAddr)
	}
	if len(c.KafkaBrokers) != 2 || c.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", c.KafkaBrokers)
	}
	if c.RequirePayment {
		t.Error("RequirePayment = true, want false")
	}
	if c.OrderStaleAfter != 30*time.Minute {
		t.Errorf("OrderStaleAfter = %v", c.OrderStaleAfter)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	t.Setenv("RAZORPAY_KEY_ID", "")
	t.Setenv("RAZORPAY_KEY_SECRET", "")

	c := Load()
	if c.RazorpayKeySecret != "" {
		t.Fatalf("secret has a default value")
	}
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "RAZORPAY_KEY_SECRET") {
		t.Errorf("Validate() = %v, want missing secret error", err)
	}
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport LOG_LEVEL=debug\nGRPC_ADDR=\":6000\"\nKAFKA_ADDR=k1:9092,k2:9092\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "warn")
	// Registered for cleanup, then removed so the file provides them.
	for _, k := range []string{"GRPC_ADDR", "KAFKA_ADDR"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	c := Load(filepath.Join(dir, "missing.env"), path)
	if c.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", c.LogLevel)
	}
	if c.GRPCAddr != ":6000" {
		t.Errorf("GRPCAddr = %q, want :6000", c.GRPCAddr)
	}
	if len(c.KafkaBrokers) != 2 || c.KafkaBrokers[0] != "k1:9092" {
		t.Errorf("KafkaBrokers = %v", c.KafkaBrokers)
	}
}

func TestValidateConsumer(t *testing.T) {
	c := Default()
	if err := c.ValidateConsumer(); err != nil {
		t.Errorf("ValidateConsumer() on defaults = %v", err)
	}

	c.StoreDriver = "memory"
	c.KafkaBrokers = nil
	err := c.ValidateConsumer()
	if err == nil || !strings.Contains(err.Error(), "STORE_DRIVER") || !strings.Contains(err.Error(), "KAFKA_ADDR") {
		t.Errorf("ValidateConsumer() = %v, want store and kafka errors", err)
	}
}
