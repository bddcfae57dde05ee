package config

import (
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults()

	if c.Eth.TokenDecimals != 6 {
		t.Errorf("decimals = %d, want 6", c.Eth.TokenDecimals)
	}
	if c.Eth.Confirmations != 12 {
		t.Errorf("confirmations = %d, want 12", c.Eth.Confirmations)
	}
	if c.WebhookTimeout() != 10*time.Second {
		t.Errorf("webhook timeout = %v", c.WebhookTimeout())
	}
	if c.Webhook.MaxRetries != 5 {
		t.Errorf("max retries = %d, want 5", c.Webhook.MaxRetries)
	}
	if c.SweepInterval() != 5*time.Minute {
		t.Errorf("sweep interval = %v", c.SweepInterval())
	}
	if c.AddressTTL() != 24*time.Hour {
		t.Errorf("address ttl = %v", c.AddressTTL())
	}
}

func TestDefaultsDoNotOverrideExplicitValues(t *testing.T) {
	c := &Config{}
	c.Eth.Confirmations = 3
	c.Webhook.TimeoutSec = 2
	c.ApplyDefaults()

	if c.Eth.Confirmations != 3 {
		t.Error("explicit confirmations overridden")
	}
	if c.WebhookTimeout() != 2*time.Second {
		t.Error("explicit timeout overridden")
	}
}

func TestTomlDecoding(t *testing.T) {
	raw := `
prod_env = true

[eth]
rpc_url = "http://localhost:8545"
ws_url = "ws://localhost:8546"
token_contract = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
confirmations = 6

[settlement]
hot_threshold = "10000"
cold_address = "0x000000000000000000000000000000000000dEaD"
sweep_interval_sec = 60

[webhook]
timeout_sec = 5
max_retries = 3

[custody]
address_ttl_sec = 3600
`

	var c Config
	if _, err := toml.Decode(raw, &c); err != nil {
		t.Fatal(err)
	}

	if !c.Prod_env {
		t.Error("prod_env not decoded")
	}
	if c.Eth.RpcUrl != "http://localhost:8545" || c.Eth.Confirmations != 6 {
		t.Error("eth section not decoded")
	}
	if c.Settlement.HotThreshold != "10000" || c.SweepInterval() != time.Minute {
		t.Error("settlement section not decoded")
	}
	if c.AddressTTL() != time.Hour {
		t.Error("custody section not decoded")
	}
}
