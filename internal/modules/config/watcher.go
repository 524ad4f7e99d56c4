package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Watcher следит за файлом конфига и отдаёт подписчикам новый Config.
// Секреты из env накладываются заново на каждую перезагрузку.
type Watcher struct {
	log *zap.Logger
	v   *viper.Viper

	mu   sync.Mutex
	subs []func(*Config)
}

func NewWatcher(cfg *Config, log *zap.Logger) *Watcher {
	v := viper.New()
	v.SetConfigFile(cfg.Path)
	v.SetConfigType("yaml")
	return &Watcher{log: log.Named("config"), v: v}
}

// OnChange регистрирует колбэк; вызывается из горутины viper.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	w.mu.Unlock()
}

// Reload перечитывает файл через viper.
func (w *Watcher) Reload() (*Config, error) {
	if err := w.v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	c := Default()
	err := w.v.Unmarshal(&c, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	c.Path = w.v.ConfigFileUsed()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (w *Watcher) Start() error {
	if _, err := w.Reload(); err != nil {
		return err
	}
	w.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := w.Reload()
		if err != nil {
			w.log.Warn("[CONFIG] reload rejected, keeping previous", zap.String("file", e.Name), zap.Error(err))
			return
		}
		w.log.Info("[CONFIG] reloaded", zap.String("file", e.Name), zap.Int("strategies", len(c.Strategies)))

		w.mu.Lock()
		subs := append([]func(*Config){}, w.subs...)
		w.mu.Unlock()
		for _, fn := range subs {
			fn(c)
		}
	})
	w.v.WatchConfig()
	return nil
}
