package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr string
	}
	Database struct {
		Path string
	}
	Vault struct {
		// Key is the hex encoded 256-bit credential sealing key.
		Key string
	}
	Auth struct {
		JWTSecret  string
		AccessTTL  time.Duration
		RefreshTTL time.Duration
	}
	Bank struct {
		BaseURL      string
		ClientID     string
		ClientSecret string
		WebhookURL   string
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv()

	v := viper.New()
	v.SetEnvPrefix("VOUCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("database.path", "data/vouch.db")
	v.SetDefault("vault.key", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.accessttl", 24*time.Hour)
	v.SetDefault("auth.refreshttl", 7*24*time.Hour)
	v.SetDefault("bank.baseurl", "https://sandbox.plaid.com")
	v.SetDefault("bank.clientid", "")
	v.SetDefault("bank.clientsecret", "")
	v.SetDefault("bank.webhookurl", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "vouch-reports")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// validate rejects configurations the service cannot run safely with. The
// sealing key and the token secret have no usable defaults.
func (c Config) validate() error {
	if c.Vault.Key == "" {
		return fmt.Errorf("vault key is required (VOUCH_VAULT_KEY, 64 hex characters)")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required (VOUCH_AUTH_JWTSECRET)")
	}
	return nil
}

func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		partsIndex := strings.Index(line, "=")
		if partsIndex <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:partsIndex])
		value := strings.TrimSpace(line[partsIndex+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
