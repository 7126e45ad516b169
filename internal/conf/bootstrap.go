// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with TRADESENTRY_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or TRADESENTRY_DATA_DATABASE_SOURCE: MySQL connection string
//   - EXCHANGE_API_KEY / EXCHANGE_API_SECRET: futures exchange credentials
//   - OPENAI_API_KEY or TRADESENTRY_AGENT_API_KEY: decision agent key
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with TRADESENTRY_ prefix
	v.SetEnvPrefix("TRADESENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without TRADESENTRY_ prefix)
	// for compatibility with docker-compose style deployments
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "TRADESENTRY_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "TRADESENTRY_DATA_REDIS_ADDR")
	_ = v.BindEnv("exchange.api_key", "EXCHANGE_API_KEY", "TRADESENTRY_EXCHANGE_API_KEY")
	_ = v.BindEnv("exchange.api_secret", "EXCHANGE_API_SECRET", "TRADESENTRY_EXCHANGE_API_SECRET")
	_ = v.BindEnv("agent.api_key", "OPENAI_API_KEY", "TRADESENTRY_AGENT_API_KEY")
	_ = v.BindEnv("server.http.admin_token", "ADMIN_TOKEN", "TRADESENTRY_SERVER_HTTP_ADMIN_TOKEN")
	_ = v.BindEnv("webhook.url", "WEBHOOK_URL", "TRADESENTRY_WEBHOOK_URL")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network:    v.GetString("server.http.network"),
				Addr:       v.GetString("server.http.addr"),
				Timeout:    durationpb.New(v.GetDuration("server.http.timeout")),
				AdminToken: v.GetString("server.http.admin_token"),
			},
		},
		Data: &Data{
			Database: &Data_Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Exchange: &Exchange{
			ApiKey:    v.GetString("exchange.api_key"),
			ApiSecret: v.GetString("exchange.api_secret"),
			Testnet:   v.GetBool("exchange.testnet"),
		},
		Agent: &Agent{
			ApiKey:  v.GetString("agent.api_key"),
			BaseURL: v.GetString("agent.base_url"),
			Model:   v.GetString("agent.model"),
			Timeout: durationpb.New(v.GetDuration("agent.timeout")),
		},
		Trading: &Trading{
			Symbols:     v.GetStringSlice("trading.symbols"),
			CycleSpec:   v.GetString("trading.cycle_spec"),
			Location:    v.GetString("trading.location"),
			MaxLeverage: v.GetFloat64("trading.max_leverage"),
		},
		Risk: &Risk{
			DailyLossPct:       v.GetFloat64("risk.daily_loss_pct"),
			HourlyLossPct:      v.GetFloat64("risk.hourly_loss_pct"),
			FourHourLossPct:    v.GetFloat64("risk.four_hour_loss_pct"),
			SingleLargeLossPct: v.GetFloat64("risk.single_large_loss_pct"),
		},
		Webhook: &Webhook{
			URL:     v.GetString("webhook.url"),
			Timeout: durationpb.New(v.GetDuration("webhook.timeout")),
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Exchange defaults
	v.SetDefault("exchange.testnet", false)

	// Agent defaults
	v.SetDefault("agent.model", "gpt-4o")
	v.SetDefault("agent.timeout", 90*time.Second)

	// Trading defaults
	v.SetDefault("trading.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("trading.cycle_spec", "0 */3 * * * *") // every 3 minutes
	v.SetDefault("trading.location", "UTC")
	v.SetDefault("trading.max_leverage", 20.0)

	// Risk defaults (negative percentages, see biz layer)
	v.SetDefault("risk.daily_loss_pct", -15.0)
	v.SetDefault("risk.hourly_loss_pct", -5.0)
	v.SetDefault("risk.four_hour_loss_pct", -8.0)
	v.SetDefault("risk.single_large_loss_pct", -3.0)

	// Webhook defaults
	v.SetDefault("webhook.timeout", 10*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	// Check required database configuration
	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	// Check required exchange credentials
	if bc.Exchange == nil || bc.Exchange.ApiKey == "" {
		missingFields = append(missingFields, "exchange.api_key (EXCHANGE_API_KEY)")
	}
	if bc.Exchange == nil || bc.Exchange.ApiSecret == "" {
		missingFields = append(missingFields, "exchange.api_secret (EXCHANGE_API_SECRET)")
	}

	// Check required agent key
	if bc.Agent == nil || bc.Agent.ApiKey == "" {
		missingFields = append(missingFields, "agent.api_key (OPENAI_API_KEY)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	// Validate risk thresholds are negative when set
	if bc.Risk != nil {
		for name, pct := range map[string]float64{
			"risk.daily_loss_pct":        bc.Risk.DailyLossPct,
			"risk.hourly_loss_pct":       bc.Risk.HourlyLossPct,
			"risk.four_hour_loss_pct":    bc.Risk.FourHourLossPct,
			"risk.single_large_loss_pct": bc.Risk.SingleLargeLossPct,
		} {
			if pct > 0 {
				return fmt.Errorf("%s must be negative, got %v", name, pct)
			}
		}
	}

	// Validate timezone resolves
	if bc.Trading != nil && bc.Trading.Location != "" {
		if _, err := time.LoadLocation(bc.Trading.Location); err != nil {
			return fmt.Errorf("invalid trading.location %q: %w", bc.Trading.Location, err)
		}
	}

	return nil
}
