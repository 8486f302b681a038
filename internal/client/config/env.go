package config

import "github.com/dmitrijs2005/studynote/internal/flagx"

func parseEnv(cfg *Config) error {
	flagx.EnvString(&cfg.ServerEndpointAddr, "STUDYNOTE_SERVER_ADDR")
	flagx.EnvString(&cfg.SessionDBPath, "STUDYNOTE_SESSION_DB")
	return flagx.EnvDuration(&cfg.OnlineCheckInterval, "STUDYNOTE_ONLINE_CHECK_INTERVAL")
}
