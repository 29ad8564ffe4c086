package config

import "github.com/caarlos0/env/v11"

type ViewerConfig struct {
	WSURL   string `env:"WS_URL" envDefault:"ws://localhost:8080/ws"`
	TopicID string `env:"TOPIC_ID" envDefault:"demo-topic"`
	Token   string `env:"TOKEN" envDefault:""`
	React   bool   `env:"REACT" envDefault:"false"`
}

func LoadViewer() (ViewerConfig, error) {
	var cfg ViewerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
