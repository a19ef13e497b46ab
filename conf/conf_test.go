package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testYaml = `
port: "9090"
log_level: "debug"
store:
  driver: "memory"
gateway:
  endpoint: "https://gw.local/v1/multicast"
  timeout: 3s
redis:
  addr: "127.0.0.1:6379"
policy:
  dedup_windows:
    payment_credited: 2h
  rate_limits:
    payment:
      ceiling: 3
      period: 30m
`

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.yaml")
	if err := os.WriteFile(path, []byte(testYaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PUSH_REDIS_ADDR", "redis.internal:6380")

	InitConfig(path)

	if Port != "9090" || StoreDriver != "memory" {
		t.Errorf("port=%q driver=%q", Port, StoreDriver)
	}
	if GatewayTimeout != 3*time.Second {
		t.Errorf("gateway timeout = %v", GatewayTimeout)
	}
	if RedisAddr != "redis.internal:6380" {
		t.Errorf("env override not applied: %q", RedisAddr)
	}
	if PolicyDedupWindows["payment_credited"] != 2*time.Hour {
		t.Errorf("dedup windows = %v", PolicyDedupWindows)
	}
	if got := PolicyRateLimits["payment"]; got.Ceiling != 3 || got.Period != 30*time.Minute {
		t.Errorf("rate limits = %+v", PolicyRateLimits)
	}
}

func TestParseEnvironment(t *testing.T) {
	if env, ok := ParseEnvironment("pro"); !ok || env != MainnetEnvironmentEnum {
		t.Errorf("pro = %v %v", env, ok)
	}
	if _, ok := ParseEnvironment("staging"); ok {
		t.Error("unknown environment accepted")
	}
}
