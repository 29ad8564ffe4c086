package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type AuctionConfig struct {
	WarmupSeconds     int `env:"PHASE_WARMUP_SECONDS" envDefault:"60"`
	DiscussionSeconds int `env:"PHASE_DISCUSSION_SECONDS" envDefault:"180"`
	BiddingSeconds    int `env:"PHASE_BIDDING_SECONDS" envDefault:"240"`
	PredictionSeconds int `env:"PHASE_PREDICTION_SECONDS" envDefault:"120"`
	ResultSeconds     int `env:"PHASE_RESULT_SECONDS" envDefault:"60"`

	DialogueIntervalSeconds int `env:"DIALOGUE_INTERVAL_SECONDS" envDefault:"25"`
	ExtensionSeconds        int `env:"EXTENSION_SECONDS" envDefault:"60"`

	MaxSessions        int `env:"MAX_SESSIONS" envDefault:"100"`
	IdleTimeoutSeconds int `env:"IDLE_TIMEOUT_SECONDS" envDefault:"600"`
	ReaperSeconds      int `env:"REAPER_INTERVAL_SECONDS" envDefault:"30"`
	GraceSeconds       int `env:"TEARDOWN_GRACE_SECONDS" envDefault:"10"`

	HistoryWindow    int `env:"PROMPT_HISTORY_WINDOW" envDefault:"8"`
	CostUpdateEvery  int `env:"COST_UPDATE_EVERY" envDefault:"5"`
	SummaryCacheSize int `env:"SUMMARY_CACHE_SIZE" envDefault:"256"`

	GuessCost   int64 `env:"GUESS_COST_CREDITS" envDefault:"10"`
	GuessReward int64 `env:"GUESS_REWARD_CREDITS" envDefault:"50"`
}

func LoadAuction() (AuctionConfig, error) {
	var cfg AuctionConfig
	err := env.Parse(&cfg)
	return cfg, err
}

func (c AuctionConfig) PhaseBudgets() [5]time.Duration {
	return [5]time.Duration{
		time.Duration(c.WarmupSeconds) * time.Second,
		time.Duration(c.DiscussionSeconds) * time.Second,
		time.Duration(c.BiddingSeconds) * time.Second,
		time.Duration(c.PredictionSeconds) * time.Second,
		time.Duration(c.ResultSeconds) * time.Second,
	}
}

func (c AuctionConfig) DialogueInterval() time.Duration {
	return time.Duration(c.DialogueIntervalSeconds) * time.Second
}

func (c AuctionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func (c AuctionConfig) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperSeconds) * time.Second
}

func (c AuctionConfig) TeardownGrace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}
