package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

type Config struct {
	DB *gorm.DB `toml:"-"`

	Prod_env bool

	Postgres struct {
		Host     string
		User     string
		Password string
		Db_name  string
		Port     uint16
		Ssl_mode string
	}

	Amqp struct {
		Url string `validate:"required"`
	}

	Eth struct {
		RpcUrl        string `toml:"rpc_url" validate:"required"`
		WsUrl         string `toml:"ws_url" validate:"required"`
		TokenContract string `toml:"token_contract" validate:"required"`
		TokenDecimals int32  `toml:"token_decimals"`
		Confirmations uint64 `toml:"confirmations"`
		GasPriceWei   int64  `toml:"gas_price_wei"`
		GasLimit      uint64 `toml:"gas_limit"`
	}

	Settlement struct {
		HotThreshold     string `toml:"hot_threshold"` // token units, decimal string
		ColdAddress      string `toml:"cold_address"`
		SweepIntervalSec int    `toml:"sweep_interval_sec"`
	}

	Webhook struct {
		TimeoutSec int `toml:"timeout_sec"`
		MaxRetries int `toml:"max_retries"`
	}

	Custody struct {
		// hex-encoded 32-byte master key, filled from SECRETS
		MasterKey     string `toml:"-"`
		AddressTTLSec int64  `toml:"address_ttl_sec"`
	}
}

func ReadConfig() *Config {
	byte_config, err := os.ReadFile(os.Getenv("CONFIG"))
	if err != nil {
		panic(err)
	}

	var config Config
	_, err = toml.Decode(string(byte_config), &config)
	if err != nil {
		panic(err)
	}

	masterKey, err := os.ReadFile(os.Getenv("SECRETS") + "/custody-master-key.txt")
	if err != nil {
		panic(err)
	}
	config.Custody.MasterKey = strings.TrimSpace(string(masterKey))

	config.ApplyDefaults()

	if err := validator.New().Struct(&config); err != nil {
		panic("config validation: " + err.Error())
	}

	return &config
}

func (c *Config) ApplyDefaults() {
	if c.Eth.TokenDecimals == 0 {
		c.Eth.TokenDecimals = 6 // USDT
	}
	if c.Eth.Confirmations == 0 {
		c.Eth.Confirmations = 12
	}
	if c.Eth.GasLimit == 0 {
		c.Eth.GasLimit = 100000
	}
	if c.Settlement.SweepIntervalSec == 0 {
		c.Settlement.SweepIntervalSec = 300
	}
	if c.Webhook.TimeoutSec == 0 {
		c.Webhook.TimeoutSec = 10
	}
	if c.Webhook.MaxRetries == 0 {
		c.Webhook.MaxRetries = 5
	}
	if c.Custody.AddressTTLSec == 0 {
		c.Custody.AddressTTLSec = int64((24 * time.Hour).Seconds())
	}
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.Webhook.TimeoutSec) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Settlement.SweepIntervalSec) * time.Second
}

func (c *Config) AddressTTL() time.Duration {
	return time.Duration(c.Custody.AddressTTLSec) * time.Second
}
