// internal/workers/list/bulk-remove-colleges/config.go
package bulkremovecolleges

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
