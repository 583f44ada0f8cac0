package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Host string `koanf:"host"`
		Port int    `koanf:"port"`
	} `koanf:"server"`

	GitHub struct {
		AppID          string `koanf:"app_id"`
		PrivateKey     string `koanf:"private_key"`      // raw PEM
		PrivateKeyPath string `koanf:"private_key_path"` // or a file path
		InstallationID int64  `koanf:"installation_id"`  // optional pin, skips discovery
		WebhookSecret  string `koanf:"webhook_secret"`
	} `koanf:"github"`

	Analysis struct {
		BaseURL string `koanf:"base_url"`
	} `koanf:"analysis"`

	ExternalTimeout time.Duration `koanf:"external_timeout"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`
}

// LoadConfig loads the configuration from defaults, an optional TOML file,
// and STACKDRAFT_-prefixed environment variables, in that precedence order.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"server.host":      "0.0.0.0",
		"server.port":      3000,
		"external_timeout": "30s",
		"log.level":        "info",
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range []string{"./stackdraft.toml", "$HOME/.stackdraft.toml"} {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// STACKDRAFT_GITHUB__APP_ID -> github.app_id. Double underscore
	// separates nesting levels so key names may keep single underscores.
	k.Load(env.Provider("STACKDRAFT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "STACKDRAFT_")), "__", ".", -1)
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# StackDraft Configuration

[server]
host = "0.0.0.0"
port = 3000

[github]
app_id = "123456"
private_key_path = "stackdraft.private-key.pem"
webhook_secret = "your-webhook-secret"

[analysis]
base_url = "http://localhost:4000"

[log]
level = "info"
pretty = true
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration. Missing credential material is
// fatal at startup rather than at first webhook delivery.
func Validate(config *Config) error {
	if config.GitHub.AppID == "" {
		return fmt.Errorf("github app_id is required")
	}

	if config.GitHub.PrivateKey == "" && config.GitHub.PrivateKeyPath == "" {
		return fmt.Errorf("one of github private_key or private_key_path is required")
	}

	if config.Analysis.BaseURL == "" {
		return fmt.Errorf("analysis base_url is required")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port %d is out of range", config.Server.Port)
	}

	if config.ExternalTimeout <= 0 {
		return fmt.Errorf("external_timeout must be positive")
	}

	return nil
}
