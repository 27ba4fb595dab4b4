// Package config loads gateway configuration from defaults, an optional YAML
// file, and CHATWIRE_* environment variables, in that order of precedence
// (environment wins).
//
// # Usage
//
//	cfg, err := config.Load(os.Getenv("CHATWIRE_CONFIG_FILE"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Hot Reload
//
// When a config file is in use, a Watcher can pick up edits at runtime:
//
//	watcher, err := config.NewWatcher(path, logger, func(cfg *config.Config) {
//		logger.SetLevel(observability.ParseLogLevel(cfg.Observability.LogLevel))
//	})
//	defer watcher.Close()
//
// Only runtime-safe settings should be consumed from reloaded snapshots;
// listeners and component wiring are fixed at startup.
package config
