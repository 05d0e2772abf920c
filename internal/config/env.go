package config

import (
	"os"
	"strconv"
)

// FromEnv overlays OXBOW_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("OXBOW_RETENTION_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.RetentionMs = ms
		}
	}
	if v := os.Getenv("OXBOW_APPEND_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AppendBatchSize = n
		}
	}
	if v := os.Getenv("OXBOW_FLUSH_DELAY_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			cfg.FlushDelayMs = ms
		}
	}
	if v := os.Getenv("OXBOW_LISTENER_BUF"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 65536 { // cap unbounded values
				n = 65536
			}
			cfg.ListenerBuf = n
		}
	}
	if v := os.Getenv("OXBOW_SLOW_OP_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			cfg.SlowOpMs = ms
		}
	}
	if v := os.Getenv("OXBOW_MAX_BLOCK_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxBlockBytes = n
		}
	}
}
