// Package config loads runtime configuration for the StudyNote CLI.
//
// Sources, later ones winning: built-in defaults, an optional JSON file named
// by -c/-config, STUDYNOTE_* environment variables, then flags:
//
//	-a string   address:port of the backend gRPC endpoint
//	-s string   path of the local session database
//	-i int      online status check interval (seconds)
//
// JSON example:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "session_db_path": "studynote.db",
//	  "online_check_interval": "3s"
//	}
package config

import "time"

// Config holds runtime settings for the CLI.
type Config struct {
	ServerEndpointAddr  string
	SessionDBPath       string
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.SessionDBPath = "studynote.db"
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig builds a Config from all sources. Malformed input panics.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	if err := parseEnv(cfg); err != nil {
		panic(err)
	}
	parseFlags(cfg)
	return cfg
}
