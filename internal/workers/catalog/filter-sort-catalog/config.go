// internal/workers/catalog/filter-sort-catalog/config.go
package filtersortcatalog

import "time"

type Config struct {
	PageSize int
	Timeout  time.Duration
}

func LoadConfig() *Config {
	return &Config{
		PageSize: 20,
		Timeout:  10 * time.Second,
	}
}
