package main

import (
	"github.com/loykin/sessiond/internal/config"
)

// serveConfig is the resolved daemon configuration: file values first,
// command-line flags override.
type serveConfig struct {
	listen        string
	basePath      string
	metricsListen string
	registry      string
	resources     *config.ResourceConfig
	historyDSNs   []string
	logPath       string
	logLevel      string
}

func resolveServeConfig(f *ServeFlags) (*serveConfig, error) {
	sc := &serveConfig{
		listen:        f.Listen,
		basePath:      f.BasePath,
		metricsListen: f.MetricsListen,
		registry:      f.Registry,
		historyDSNs:   f.HistoryDSNs,
		logPath:       f.LogPath,
		logLevel:      f.LogLevel,
	}
	if f.ConfigPath == "" {
		return sc, nil
	}
	fc, err := config.LoadFromTOML(f.ConfigPath)
	if err != nil {
		return nil, err
	}
	if sc.registry == "" {
		sc.registry = fc.Registry
	}
	if fc.Resources != nil {
		rc, err := fc.ResourceConfig()
		if err != nil {
			return nil, err
		}
		sc.resources = &rc
	}
	if fc.Server != nil {
		if f.Listen == ":8080" && fc.Server.Listen != "" {
			sc.listen = fc.Server.Listen
		}
		if f.BasePath == "/api" && fc.Server.BasePath != "" {
			sc.basePath = fc.Server.BasePath
		}
		if sc.metricsListen == "" {
			sc.metricsListen = fc.Server.MetricsListen
		}
	}
	if len(sc.historyDSNs) == 0 {
		sc.historyDSNs = fc.History
	}
	if fc.Log != nil {
		if sc.logPath == "" {
			sc.logPath = fc.Log.Path
		}
		if sc.logLevel == "info" && fc.Log.Level != "" {
			sc.logLevel = fc.Log.Level
		}
	}
	return sc, nil
}
