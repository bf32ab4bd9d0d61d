package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Static errors for configuration validation.
var (
	ErrBadTopicSpec = errors.New("topic spec must be name:id")
	ErrNoTopics     = errors.New("no watch topics configured")
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	SentryDSN   string `env:"SENTRY_DSN"`

	// Feishu app credentials and the members pulled into every review group.
	FeishuAppID     string   `env:"FEISHU_APP_ID,required"`
	FeishuAppSecret string   `env:"FEISHU_APP_SECRET,required"`
	InitUserIDs     []string `env:"INIT_USER_IDS" envSeparator:","`

	// WatchTopics is a comma-separated list of name:id pairs,
	// e.g. "A-SOUL:1712619,嘉然:22605464". The name is used for the
	// dynamic feed, the numeric id for the video feed.
	WatchTopics     string   `env:"WATCH_TOPICS,required"`
	VideoCategories []string `env:"VIDEO_CATEGORIES" envSeparator:"," envDefault:"音乐,舞蹈,鬼畜,杂谈"`

	BatchSize        int           `env:"BATCH_SIZE" envDefault:"10"`
	FeedPageLimit    int           `env:"FEED_PAGE_LIMIT" envDefault:"1"`
	FeedCallInterval time.Duration `env:"FEED_CALL_INTERVAL" envDefault:"2s"`
	FeedTimeout      time.Duration `env:"FEED_TIMEOUT" envDefault:"20s"`

	// Poll cadence is tuned to expected posting volume: night hours see
	// little new content, so the night interval is the longer one.
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"3m"`
	PollIntervalNight time.Duration `env:"POLL_INTERVAL_NIGHT" envDefault:"5m"`
	NightStartHour    int           `env:"NIGHT_START_HOUR" envDefault:"1"`
	NightEndHour      int           `env:"NIGHT_END_HOUR" envDefault:"8"`

	LocalTimezone    string `env:"LOCAL_TIMEZONE" envDefault:"Asia/Shanghai"`
	FallbackImageKey string `env:"FALLBACK_IMAGE_KEY" envDefault:"img_v2_1f156161-3ffa-40f7-9d28-9621cc5ed2cg"`

	DBMaxConnections int32         `env:"DB_MAX_CONNECTIONS" envDefault:"5"`
	DBMinConnections int32         `env:"DB_MIN_CONNECTIONS" envDefault:"0"`
	DBMaxConnIdle    time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"5m"`
}

// Topic is one tracked subject: the platform names the dynamic feed by
// topic name and the video feed by numeric tag id.
type Topic struct {
	Name string
	ID   int64
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if _, err := cfg.Topics(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Topics parses WatchTopics into its name/id pairs.
func (c *Config) Topics() ([]Topic, error) {
	specs := strings.Split(c.WatchTopics, ",")
	topics := make([]Topic, 0, len(specs))

	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}

		idx := strings.LastIndex(spec, ":")
		if idx <= 0 || idx == len(spec)-1 {
			return nil, fmt.Errorf("%w: %q", ErrBadTopicSpec, spec)
		}

		id, err := strconv.ParseInt(spec[idx+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadTopicSpec, spec)
		}

		topics = append(topics, Topic{Name: spec[:idx], ID: id})
	}

	if len(topics) == 0 {
		return nil, ErrNoTopics
	}

	return topics, nil
}

// Location resolves the moderation team's local timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.LocalTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	return loc, nil
}

// IsNightHour reports whether the given local hour falls in the
// low-traffic window that uses the longer poll interval.
func (c *Config) IsNightHour(hour int) bool {
	return hour >= c.NightStartHour && hour <= c.NightEndHour
}
