/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * The individual validation check toggles are collected into an explicit
 * `ValidationChecks` value here and handed to the validation pipeline
 * constructor, so the enabled check-set is a testable input rather than
 * ambient environment state.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Running-mode values for the "raffle running" check.
const (
	RunningModeStrict = "strict" // status must equal "running"
	RunningModeOpen   = "open"   // any non-closed status is accepted
)

// ValidationChecks is the explicit enabled-set for the validation pipeline.
type ValidationChecks struct {
	TokenMatch          bool
	TransactionStatus   bool
	RaffleExists        bool
	RaffleRunning       bool
	TemporalValidity    bool
	DestinationValidity bool
	SignatureUniqueness bool
	RunningMode         string
}

// Config holds all the configuration variables for the raffle-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	SolscanAPIBaseURL          string `mapstructure:"SOLSCAN_API_BASE_URL"`
	SolscanAPIKey              string `mapstructure:"SOLSCAN_API_KEY"`
	ReceivingWalletAddress     string `mapstructure:"RECEIVING_WALLET_ADDRESS"`
	AccessTokens               string `mapstructure:"ACCESS_TOKENS"`
	JWKSURL                    string `mapstructure:"JWKS_URL"`
	PurchaseRateLimitPerMinute int    `mapstructure:"PURCHASE_RATE_LIMIT_PER_MINUTE"`

	CheckTokenSymbol       bool   `mapstructure:"CHECK_TOKEN_SYMBOL"`
	CheckTxStatus          bool   `mapstructure:"CHECK_TX_STATUS"`
	CheckRaffleExists      bool   `mapstructure:"CHECK_RAFFLE_EXISTS"`
	CheckRaffleRunning     bool   `mapstructure:"CHECK_RAFFLE_RUNNING"`
	CheckRaffleTime        bool   `mapstructure:"CHECK_RAFFLE_TIME"`
	CheckRaffleDestination bool   `mapstructure:"CHECK_RAFFLE_DESTINATION"`
	CheckUsedSignature     bool   `mapstructure:"CHECK_USED_SIGNATURE"`
	RaffleRunningMode      string `mapstructure:"RAFFLE_RUNNING_MODE"`
}

// ValidationChecks builds the pipeline check-set from the loaded toggles.
func (c Config) ValidationChecks() ValidationChecks {
	return ValidationChecks{
		TokenMatch:          c.CheckTokenSymbol,
		TransactionStatus:   c.CheckTxStatus,
		RaffleExists:        c.CheckRaffleExists,
		RaffleRunning:       c.CheckRaffleRunning,
		TemporalValidity:    c.CheckRaffleTime,
		DestinationValidity: c.CheckRaffleDestination,
		SignatureUniqueness: c.CheckUsedSignature,
		RunningMode:         c.RaffleRunningMode,
	}
}

// AccessTokenList splits the comma-separated static bearer tokens.
func (c Config) AccessTokenList() []string {
	var tokens []string
	for _, token := range strings.Split(c.AccessTokens, ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SOLSCAN_API_BASE_URL", "https://public-api.solscan.io")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "raffle:rate_limit")
	viper.SetDefault("PURCHASE_RATE_LIMIT_PER_MINUTE", 0)
	viper.SetDefault("CHECK_TOKEN_SYMBOL", true)
	viper.SetDefault("CHECK_TX_STATUS", true)
	viper.SetDefault("CHECK_RAFFLE_EXISTS", true)
	viper.SetDefault("CHECK_RAFFLE_RUNNING", true)
	viper.SetDefault("CHECK_RAFFLE_TIME", true)
	viper.SetDefault("CHECK_RAFFLE_DESTINATION", true)
	viper.SetDefault("CHECK_USED_SIGNATURE", true)
	viper.SetDefault("RAFFLE_RUNNING_MODE", RunningModeStrict)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SOLSCAN_API_BASE_URL")
	_ = viper.BindEnv("SOLSCAN_API_KEY")
	_ = viper.BindEnv("RECEIVING_WALLET_ADDRESS", "RECEIVING_WALLET_ADDRESS", "SOL_WALLET")
	_ = viper.BindEnv("ACCESS_TOKENS")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("PURCHASE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CHECK_TOKEN_SYMBOL")
	_ = viper.BindEnv("CHECK_TX_STATUS")
	_ = viper.BindEnv("CHECK_RAFFLE_EXISTS")
	_ = viper.BindEnv("CHECK_RAFFLE_RUNNING")
	_ = viper.BindEnv("CHECK_RAFFLE_TIME")
	_ = viper.BindEnv("CHECK_RAFFLE_DESTINATION")
	_ = viper.BindEnv("CHECK_USED_SIGNATURE")
	_ = viper.BindEnv("RAFFLE_RUNNING_MODE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "raffle:rate_limit"
	}
	config.SolscanAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.SolscanAPIBaseURL), "/")
	config.ReceivingWalletAddress = strings.TrimSpace(config.ReceivingWalletAddress)

	config.RaffleRunningMode = strings.ToLower(strings.TrimSpace(config.RaffleRunningMode))
	switch config.RaffleRunningMode {
	case RunningModeStrict, RunningModeOpen:
	case "":
		config.RaffleRunningMode = RunningModeStrict
	default:
		log.Printf("level=warn component=config msg=\"unknown raffle running mode; falling back to strict\" mode=%q", config.RaffleRunningMode)
		config.RaffleRunningMode = RunningModeStrict
	}

	if config.PurchaseRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative purchase rate limit configured; disabling\" limit=%d", config.PurchaseRateLimitPerMinute)
		config.PurchaseRateLimitPerMinute = 0
	}

	return
}
