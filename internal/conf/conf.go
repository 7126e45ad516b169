package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration for the TradeSentry daemon.
type Bootstrap struct {
	Server   *Server
	Data     *Data
	Exchange *Exchange
	Agent    *Agent
	Trading  *Trading
	Risk     *Risk
	Webhook  *Webhook
	Log      *Log
}

// Server holds transport server configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP holds HTTP server configuration.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
	// AdminToken guards mutating risk endpoints (manual breaker reset).
	AdminToken string
}

// Data holds persistence configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database holds the relational store configuration.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis holds the Redis cache configuration.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Exchange holds futures exchange API credentials.
type Exchange struct {
	ApiKey    string
	ApiSecret string
	Testnet   bool
}

// Agent holds LLM decision agent configuration.
type Agent struct {
	ApiKey  string
	BaseURL string
	Model   string
	Timeout *durationpb.Duration
}

// Trading holds trading loop configuration.
type Trading struct {
	// Symbols is the candidate universe the loop asks the agent about.
	Symbols []string
	// CycleSpec is the cron spec (with seconds field) for decision cycles.
	CycleSpec string
	// Location is the IANA timezone used for daily loss boundaries.
	Location string
	// MaxLeverage caps what the agent may request.
	MaxLeverage float64
}

// Risk holds tunable risk thresholds. Zero values fall back to defaults
// applied in the biz layer.
type Risk struct {
	DailyLossPct       float64
	HourlyLossPct      float64
	FourHourLossPct    float64
	SingleLargeLossPct float64
}

// Webhook holds breaker event notification configuration.
type Webhook struct {
	URL     string
	Timeout *durationpb.Duration
}

// Log holds logging configuration.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
