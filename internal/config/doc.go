// Package config loads topicmq configuration.
//
// Configuration is read from a TOML or YAML file, selected by extension,
// and then overridden by TOPICMQ_* environment variables:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← Highest priority
//	├─────────────────────────────┤
//	│  2. Config File             │  ← topicmq.toml / topicmq.yaml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// A minimal TOML file:
//
//	[broker]
//	max_name_len = 64
//	lock_timeout = "3s"
//
//	[[bridges.rules]]
//	from = "sensor/+/temp"
//	to = "metrics/$2/celsius"
//
// Watcher reloads the file when it changes so bridge rules can be replaced
// without a restart. Broker settings only take effect on start.
package config
