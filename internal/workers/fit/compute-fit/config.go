// internal/workers/fit/compute-fit/config.go
package computefit

import "time"

type Config struct {
	AgentBaseURL string
	AgentAPIKey  string
	// Timeout bounds the whole job; AgentTimeout bounds a single agent
	// request, leaving room in the job budget for retries.
	Timeout      time.Duration
	AgentTimeout time.Duration
	MaxRetries   int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:      60 * time.Second,
		AgentTimeout: 20 * time.Second,
		MaxRetries:   2,
	}
}
