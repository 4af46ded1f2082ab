package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_DefaultsEnableEveryCheck(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"CHECK_TOKEN_SYMBOL", "CHECK_TX_STATUS", "CHECK_RAFFLE_EXISTS",
		"CHECK_RAFFLE_RUNNING", "CHECK_RAFFLE_TIME", "CHECK_RAFFLE_DESTINATION",
		"CHECK_USED_SIGNATURE", "RAFFLE_RUNNING_MODE",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	checks := cfg.ValidationChecks()
	if !checks.TokenMatch || !checks.TransactionStatus || !checks.RaffleExists ||
		!checks.RaffleRunning || !checks.TemporalValidity || !checks.DestinationValidity ||
		!checks.SignatureUniqueness {
		t.Fatalf("expected every check enabled by default, got %+v", checks)
	}
	if checks.RunningMode != RunningModeStrict {
		t.Fatalf("expected strict running mode by default, got %q", checks.RunningMode)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default server port 8080, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_CheckTogglesAreIndependent(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "CHECK_RAFFLE_DESTINATION", "false")
	setEnvWithCleanup(t, "CHECK_RAFFLE_TIME", "false")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	checks := cfg.ValidationChecks()
	if checks.DestinationValidity || checks.TemporalValidity {
		t.Fatalf("expected disabled checks to stay off, got %+v", checks)
	}
	if !checks.TokenMatch || !checks.SignatureUniqueness {
		t.Fatalf("disabling two checks must not affect the others, got %+v", checks)
	}
}

func TestLoadConfig_UnknownRunningModeFallsBackToStrict(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "RAFFLE_RUNNING_MODE", "lenient")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RaffleRunningMode != RunningModeStrict {
		t.Fatalf("expected fallback to strict, got %q", cfg.RaffleRunningMode)
	}
}

func TestLoadConfig_RunningModeIsNormalized(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "RAFFLE_RUNNING_MODE", "  OPEN ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RaffleRunningMode != RunningModeOpen {
		t.Fatalf("expected open, got %q", cfg.RaffleRunningMode)
	}
}

func TestLoadConfig_UsesSolWalletAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "RECEIVING_WALLET_ADDRESS")
	setEnvWithCleanup(t, "SOL_WALLET", "alias-wallet")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ReceivingWalletAddress != "alias-wallet" {
		t.Fatalf("expected wallet from alias env var, got %q", cfg.ReceivingWalletAddress)
	}
}

func TestLoadConfig_NegativeRateLimitIsDisabled(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "PURCHASE_RATE_LIMIT_PER_MINUTE", "-1")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PurchaseRateLimitPerMinute != 0 {
		t.Fatalf("expected negative limit coerced to 0, got %d", cfg.PurchaseRateLimitPerMinute)
	}
}

func TestAccessTokenList(t *testing.T) {
	cfg := Config{AccessTokens: " alpha, ,beta,"}
	tokens := cfg.AccessTokenList()
	if len(tokens) != 2 || tokens[0] != "alpha" || tokens[1] != "beta" {
		t.Fatalf("expected [alpha beta], got %v", tokens)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
