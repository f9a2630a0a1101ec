package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"focustimer/internal/model"
)

type Config struct {
	Port          string
	DBPath        string
	JWTSecret     string
	TokenTTL      time.Duration
	CORSOrigins   []string
	MigrationsDir string
	Timer         TimerConfig
	Reminder      ReminderConfig
}

type TimerConfig struct {
	Defaults     model.SessionConfig
	TickInterval time.Duration
	StartHidden  bool
}

type ReminderConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Loader reads configuration from built-in defaults, an optional YAML file
// and the environment, in increasing precedence. Nested keys map to
// environment names with dots replaced by underscores, e.g.
// timer.focus_seconds is TIMER_FOCUS_SECONDS.
type Loader struct {
	v    *viper.Viper
	mu   sync.Mutex
	file string
}

func NewLoader(file string) *Loader {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("focustimer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/focustimer")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "./data/focustimer.db")
	v.SetDefault("jwt_secret", "change-this-secret")
	v.SetDefault("token_ttl_hours", 72)
	v.SetDefault("cors_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("migrations_dir", "")

	defaults := model.DefaultSessionConfig()
	v.SetDefault("timer.focus_seconds", defaults.FocusSeconds)
	v.SetDefault("timer.short_break_seconds", defaults.ShortBreakSeconds)
	v.SetDefault("timer.long_break_seconds", defaults.LongBreakSeconds)
	v.SetDefault("timer.sessions_before_long_break", defaults.SessionsBeforeLongBreak)
	v.SetDefault("timer.auto_start_break", defaults.AutoStartBreak)
	v.SetDefault("timer.auto_start_focus", defaults.AutoStartFocus)
	v.SetDefault("timer.tick_interval", time.Second)
	v.SetDefault("timer.start_hidden", false)

	v.SetDefault("reminder.base_url", "")
	v.SetDefault("reminder.token", "")
	v.SetDefault("reminder.timeout", 3*time.Second)

	return &Loader{v: v, file: file}
}

// Load is a convenience for NewLoader(file).Load().
func Load(file string) (Config, error) {
	return NewLoader(file).Load()
}

func (l *Loader) Load() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || l.file != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return l.build()
}

// Watch calls onChange with the reloaded configuration whenever the config
// file changes. It is a no-op when no file is in use. Invalid edits are
// logged and skipped.
func (l *Loader) Watch(onChange func(Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.Load()
		if err != nil {
			log.Printf("warning: reload config %s: %v", event.Name, err)
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) build() (Config, error) {
	v := l.v
	cfg := Config{
		Port:          v.GetString("port"),
		DBPath:        v.GetString("db_path"),
		JWTSecret:     v.GetString("jwt_secret"),
		TokenTTL:      time.Duration(v.GetInt("token_ttl_hours")) * time.Hour,
		CORSOrigins:   splitList(v.GetStringSlice("cors_origins")),
		MigrationsDir: v.GetString("migrations_dir"),
		Timer: TimerConfig{
			Defaults: model.SessionConfig{
				FocusSeconds:            v.GetInt("timer.focus_seconds"),
				ShortBreakSeconds:       v.GetInt("timer.short_break_seconds"),
				LongBreakSeconds:        v.GetInt("timer.long_break_seconds"),
				SessionsBeforeLongBreak: v.GetInt("timer.sessions_before_long_break"),
				AutoStartBreak:          v.GetBool("timer.auto_start_break"),
				AutoStartFocus:          v.GetBool("timer.auto_start_focus"),
			},
			TickInterval: v.GetDuration("timer.tick_interval"),
			StartHidden:  v.GetBool("timer.start_hidden"),
		},
		Reminder: ReminderConfig{
			BaseURL: strings.TrimRight(v.GetString("reminder.base_url"), "/"),
			Token:   v.GetString("reminder.token"),
			Timeout: v.GetDuration("reminder.timeout"),
		},
	}

	if err := cfg.Timer.Defaults.Validate(); err != nil {
		return Config{}, fmt.Errorf("timer config: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		log.Println("warning: token_ttl_hours must be positive, using 72")
		cfg.TokenTTL = 72 * time.Hour
	}
	if cfg.Timer.TickInterval <= 0 {
		log.Println("warning: timer.tick_interval must be positive, using 1s")
		cfg.Timer.TickInterval = time.Second
	}
	return cfg, nil
}

// splitList accepts both YAML lists and the comma separated form used in
// environment variables.
func splitList(values []string) []string {
	items := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}
