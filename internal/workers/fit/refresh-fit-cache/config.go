// internal/workers/fit/refresh-fit-cache/config.go
package refreshfitcache

import "time"

type Config struct {
	PrecomputedFitsURL string
	StalenessURL       string
	RecomputeURL       string
	Timeout            time.Duration
	MaxRetries         int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}
