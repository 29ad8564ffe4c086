package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	MaxConnections       int   `env:"MAX_CONNECTIONS" envDefault:"2000"`
	MaxViewersPerSession int   `env:"MAX_VIEWERS_PER_SESSION" envDefault:"200"`
	MaxInboundBytes      int64 `env:"MAX_INBOUND_BYTES" envDefault:"8192"`
	RatePerMinute        int   `env:"RATE_PER_MINUTE" envDefault:"60"`
	HeartbeatSeconds     int   `env:"HEARTBEAT_SECONDS" envDefault:"30"`

	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	KimiBaseURL   string `env:"KIMI_BASE_URL" envDefault:"https://api.moonshot.cn/v1"`
	KimiAPIKey    string `env:"KIMI_API_KEY"`
	KimiModel     string `env:"KIMI_MODEL" envDefault:"moonshot-v1-8k"`

	OpenAIPricePer1K float64 `env:"OPENAI_PRICE_PER_1K" envDefault:"0.01"`
	KimiPricePer1K   float64 `env:"KIMI_PRICE_PER_1K" envDefault:"0.012"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
