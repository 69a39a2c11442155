package config

import (
	"strings"
	"time"

	"gitlab.com/ConsignEx/escrowrouter/internal/lib"
)

// Validation tags described here: https://pkg.go.dev/github.com/go-playground/validator/v10
type Config struct {
	Environment string `env:"ENVIRONMENT" flag:"environment" desc:"development or production"`

	Auth struct {
		Secret   string        `env:"AUTH_SECRET"    flag:"auth-secret"    desc:"HMAC secret for bearer tokens, generated per boot when empty"`
		TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" flag:"auth-token-ttl" desc:"lifetime of minted bearer tokens"`
	}
	Journal struct {
		Capacity int `env:"JOURNAL_CAPACITY" flag:"journal-capacity" validate:"omitempty,number" desc:"number of deal events retained in memory"`
	}
	Ledger struct {
		Backend      string `env:"LEDGER_BACKEND"      flag:"ledger-backend"      validate:"omitempty,oneof=sim erc20" desc:"sim for the in-process ledger, erc20 for an on-chain token"`
		GenesisPath  string `env:"LEDGER_GENESIS_PATH" flag:"ledger-genesis-path" validate:"omitempty,filepath"        desc:"yaml file with initial balances and allowances for the sim backend"`
		EthNodeURL   string `env:"ETH_NODE_URL"        flag:"eth-node-url"        validate:"required_if=Backend erc20,omitempty,url"`
		TokenAddress string `env:"TOKEN_ADDRESS"       flag:"token-address"       validate:"required_if=Backend erc20,omitempty,eth_addr"`
		LegacyTx     bool   `env:"ETH_NODE_LEGACY_TX"  flag:"eth-node-legacy-tx"  desc:"use it to disable EIP-1559 transactions"`
	}
	Log struct {
		Color        bool   `env:"LOG_COLOR"         flag:"log-color"`
		FolderPath   string `env:"LOG_FOLDER_PATH"   flag:"log-folder-path"   validate:"omitempty,dirpath" desc:"enables file logging and sets the folder path"`
		IsProd       bool   `env:"LOG_IS_PROD"       flag:"log-is-prod"       desc:"affects the format of the log output"`
		JSON         bool   `env:"LOG_JSON"          flag:"log-json"`
		LevelApp     string `env:"LOG_LEVEL_APP"     flag:"log-level-app"     validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelEscrow  string `env:"LOG_LEVEL_ESCROW"  flag:"log-level-escrow"  validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelLedger  string `env:"LOG_LEVEL_LEDGER"  flag:"log-level-ledger"  validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelStorage string `env:"LOG_LEVEL_STORAGE" flag:"log-level-storage" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	}
	Store struct {
		Backend       string `env:"STORE_BACKEND"        flag:"store-backend"        validate:"omitempty,oneof=memory sqlite redis"`
		SQLitePath    string `env:"STORE_SQLITE_PATH"    flag:"store-sqlite-path"    validate:"required_if=Backend sqlite,omitempty" desc:"database file path for the sqlite backend"`
		RedisAddr     string `env:"STORE_REDIS_ADDR"     flag:"store-redis-addr"     validate:"required_if=Backend redis,omitempty,hostname_port"`
		RedisPassword string `env:"STORE_REDIS_PASSWORD" flag:"store-redis-password"`
		RedisDB       int    `env:"STORE_REDIS_DB"       flag:"store-redis-db"       validate:"omitempty,number"`
	}
	Wallet struct {
		Mnemonic     string `env:"WALLET_MNEMONIC"      flag:"wallet-mnemonic"      validate:"required_without=PrivateKey"`
		AccountIndex int    `env:"WALLET_ACCOUNT_INDEX" flag:"wallet-account-index" validate:"omitempty,number"`
		PrivateKey   string `env:"WALLET_PRIVATE_KEY"   flag:"wallet-private-key"   validate:"required_without=Mnemonic"`
	}
	Web struct {
		Address   string `env:"WEB_ADDRESS"    flag:"web-address"    validate:"required,hostname_port" desc:"http server address host:port"`
		PublicUrl string `env:"WEB_PUBLIC_URL" flag:"web-public-url" validate:"omitempty,url"          desc:"public url of the router, falls back to web-address if empty"`
	}
}

func (cfg *Config) SetDefaults() {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Auth
	if cfg.Auth.Secret == "" {
		// tokens minted against a per-boot secret die with the process,
		// set AUTH_SECRET for anything beyond development
		cfg.Auth.Secret = lib.GetRandomHash().Hex()
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	// Journal
	if cfg.Journal.Capacity == 0 {
		cfg.Journal.Capacity = 4096
	}

	// Ledger
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "sim"
	}

	// Log
	if cfg.Log.LevelApp == "" {
		cfg.Log.LevelApp = "debug"
	}
	if cfg.Log.LevelEscrow == "" {
		cfg.Log.LevelEscrow = "debug"
	}
	if cfg.Log.LevelLedger == "" {
		cfg.Log.LevelLedger = "info"
	}
	if cfg.Log.LevelStorage == "" {
		cfg.Log.LevelStorage = "info"
	}

	// Store
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "data/deals.db"
	}

	// Wallet

	// normalizes private key
	cfg.Wallet.PrivateKey = strings.TrimPrefix(cfg.Wallet.PrivateKey, "0x")

	// Web
	if cfg.Web.Address == "" {
		cfg.Web.Address = "0.0.0.0:8080"
	}
	if cfg.Web.PublicUrl == "" {
		cfg.Web.PublicUrl = "http://localhost:8080"
	}
}

// GetSanitized returns a copy of the config with sensitive data removed
// explicitly adding each field here to avoid accidentally leaking sensitive data
func (cfg *Config) GetSanitized() interface{} {
	publicCfg := Config{}

	publicCfg.Environment = cfg.Environment

	publicCfg.Auth.TokenTTL = cfg.Auth.TokenTTL

	publicCfg.Journal.Capacity = cfg.Journal.Capacity

	publicCfg.Ledger.Backend = cfg.Ledger.Backend
	publicCfg.Ledger.GenesisPath = cfg.Ledger.GenesisPath
	publicCfg.Ledger.EthNodeURL = cfg.Ledger.EthNodeURL
	publicCfg.Ledger.TokenAddress = cfg.Ledger.TokenAddress
	publicCfg.Ledger.LegacyTx = cfg.Ledger.LegacyTx

	publicCfg.Log.Color = cfg.Log.Color
	publicCfg.Log.FolderPath = cfg.Log.FolderPath
	publicCfg.Log.IsProd = cfg.Log.IsProd
	publicCfg.Log.JSON = cfg.Log.JSON
	publicCfg.Log.LevelApp = cfg.Log.LevelApp
	publicCfg.Log.LevelEscrow = cfg.Log.LevelEscrow
	publicCfg.Log.LevelLedger = cfg.Log.LevelLedger
	publicCfg.Log.LevelStorage = cfg.Log.LevelStorage

	publicCfg.Store.Backend = cfg.Store.Backend
	publicCfg.Store.SQLitePath = cfg.Store.SQLitePath
	publicCfg.Store.RedisAddr = cfg.Store.RedisAddr
	publicCfg.Store.RedisDB = cfg.Store.RedisDB

	publicCfg.Wallet.AccountIndex = cfg.Wallet.AccountIndex

	publicCfg.Web.Address = cfg.Web.Address
	publicCfg.Web.PublicUrl = cfg.Web.PublicUrl

	return publicCfg
}
