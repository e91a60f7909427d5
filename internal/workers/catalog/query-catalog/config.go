// internal/workers/catalog/query-catalog/config.go
package querycatalog

import "time"

type Config struct {
	IndexName string
	Timeout   time.Duration
}

func LoadConfig() *Config {
	return &Config{
		IndexName: "university-catalog",
		Timeout:   15 * time.Second,
	}
}
