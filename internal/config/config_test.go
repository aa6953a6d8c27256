package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "SHOP_TIMEZONE", "TX_MAX_ATTEMPTS", "PRODUCT_CACHE_TTL_SECONDS", "APP_ENV"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.ShopTimezone != "Asia/Kolkata" {
		t.Fatalf("expected Asia/Kolkata, got %q", cfg.ShopTimezone)
	}
	if cfg.TransactionMaxAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.TransactionMaxAttempts)
	}
	if cfg.ProductCacheTTLSeconds != 300 {
		t.Fatalf("expected 300s cache ttl, got %d", cfg.ProductCacheTTLSeconds)
	}
	if cfg.IsProduction() {
		t.Fatalf("expected development by default")
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "malformed", value: "many", want: 5},
		{name: "zero", value: "0", want: 5},
		{name: "negative", value: "-3", want: 5},
		{name: "valid", value: "12", want: 12},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TX_MAX_ATTEMPTS", tc.value)
			if got := Load().TransactionMaxAttempts; got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}
