package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// RetentionMs is the rolling retention window for buffered streams,
	// measured from the last mutation.
	RetentionMs int64 `json:"retentionMs"`
	// AppendBatchSize is the producer-side batch size before a flush.
	AppendBatchSize int `json:"appendBatchSize"`
	// FlushDelayMs bounds how long an event may sit unflushed in a batch.
	FlushDelayMs int64 `json:"flushDelayMs"`
	// ListenerBuf is the buffered channel capacity per resume listener.
	ListenerBuf int `json:"listenerBuf"`
	// SlowOpMs is the threshold above which buffer mutations are logged.
	SlowOpMs int64 `json:"slowOpMs"`
	// MaxBlockBytes caps a single appended block. Zero disables the cap.
	MaxBlockBytes int `json:"maxBlockBytes"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		RetentionMs:     (10 * time.Minute).Milliseconds(),
		AppendBatchSize: 24,
		FlushDelayMs:    120,
		ListenerBuf:     1024,
		SlowOpMs:        80,
		MaxBlockBytes:   1 << 20,
	}
}

// Retention returns the retention window as a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionMs) * time.Millisecond
}

// FlushDelay returns the batch flush window as a duration.
func (c Config) FlushDelay() time.Duration {
	return time.Duration(c.FlushDelayMs) * time.Millisecond
}

// SlowOp returns the slow-operation threshold as a duration.
func (c Config) SlowOp() time.Duration {
	return time.Duration(c.SlowOpMs) * time.Millisecond
}

// Validate rejects configurations that cannot work.
func (c Config) Validate() error {
	if c.RetentionMs <= 0 {
		return errors.New("config: retentionMs must be positive")
	}
	if c.AppendBatchSize <= 0 {
		return errors.New("config: appendBatchSize must be positive")
	}
	if c.ListenerBuf <= 0 {
		return errors.New("config: listenerBuf must be positive")
	}
	return nil
}

// Load reads configuration from a JSON file. If path is empty, returns
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
