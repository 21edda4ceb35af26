package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port           string   `mapstructure:"port"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`
	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	JWT struct {
		SecretKey string        `mapstructure:"secret_key"`
		TTL       time.Duration `mapstructure:"ttl"`
	} `mapstructure:"jwt"`
	Redis struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Database struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
	Settlement struct {
		BaseURL      string        `mapstructure:"base_url"`
		Demo         bool          `mapstructure:"demo"`
		DemoApproval time.Duration `mapstructure:"demo_approval"`
		Timeout      time.Duration `mapstructure:"timeout"`
		AssetCode    string        `mapstructure:"asset_code"`
		Currency     string        `mapstructure:"currency"`
		Lang         string        `mapstructure:"lang"`
	} `mapstructure:"settlement"`
	Rates struct {
		Live     bool    `mapstructure:"live"`
		Fallback float64 `mapstructure:"fallback"`
	} `mapstructure:"rates"`
	Deposit struct {
		Minimum       float64       `mapstructure:"minimum"`
		FeeBps        int64         `mapstructure:"fee_bps"`
		PollInterval  time.Duration `mapstructure:"poll_interval"`
		DefaultExpiry time.Duration `mapstructure:"default_expiry"`
	} `mapstructure:"deposit"`
	Withdraw struct {
		Minimum    float64 `mapstructure:"minimum"`
		FeeBps     int64   `mapstructure:"fee_bps"`
		PacePhases bool    `mapstructure:"pace_phases"`
	} `mapstructure:"withdraw"`
	Session struct {
		Store      string `mapstructure:"store"`
		FilePath   string `mapstructure:"file_path"`
		Passphrase string `mapstructure:"passphrase"`
		RedisKey   string `mapstructure:"redis_key"`
	} `mapstructure:"session"`
	Credential struct {
		RPID      string `mapstructure:"rp_id"`
		RPName    string `mapstructure:"rp_name"`
		Supported bool   `mapstructure:"supported"`
	} `mapstructure:"credential"`
	Savings struct {
		APY float64 `mapstructure:"apy"`
	} `mapstructure:"savings"`
}

var AppConfig Config

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("log.level", "info")
	viper.SetDefault("jwt.ttl", time.Hour)
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("settlement.demo", true)
	viper.SetDefault("settlement.demo_approval", 5*time.Second)
	viper.SetDefault("settlement.timeout", 15*time.Second)
	viper.SetDefault("settlement.asset_code", "USDC")
	viper.SetDefault("settlement.currency", "BRL")
	viper.SetDefault("settlement.lang", "pt-BR")
	viper.SetDefault("rates.fallback", 5.5)
	viper.SetDefault("deposit.minimum", 10.0)
	viper.SetDefault("deposit.poll_interval", 3*time.Second)
	viper.SetDefault("deposit.default_expiry", 15*time.Minute)
	viper.SetDefault("withdraw.minimum", 10.0)
	viper.SetDefault("withdraw.pace_phases", true)
	viper.SetDefault("session.store", "file")
	viper.SetDefault("session.file_path", "smartpig_session.json")
	viper.SetDefault("session.redis_key", "smart_pig_session")
	viper.SetDefault("credential.rp_id", "localhost")
	viper.SetDefault("credential.rp_name", "Smart Pig DeFi")
	viper.SetDefault("credential.supported", true)
	viper.SetDefault("savings.apy", 0.07)
}

// LoadConfig reads config.yml from path, then .env and the process
// environment. A missing config file is not an error; defaults apply.
func LoadConfig(path string) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, relying on environment variables")
	}

	setDefaults()
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("Error reading config file, %s", err)
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
}
