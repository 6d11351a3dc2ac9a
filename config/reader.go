package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
}

type ConfigSchema struct {
	API struct {
		BaseURL        string        `yaml:"base_url"`
		Timeout        time.Duration `yaml:"timeout"`
		RefreshTimeout time.Duration `yaml:"refresh_timeout"`
	} `yaml:"api"`
	Storage struct {
		Driver     string `yaml:"driver"` // memory, file, sqlite, postgres, redis
		Path       string `yaml:"path"`
		Passphrase string `yaml:"passphrase"`
		SQLiteDSN  string `yaml:"sqlite_dsn"`
	} `yaml:"storage"`
	Databases struct {
		Master   DBConfig   `yaml:"master"`
		Replicas []DBConfig `yaml:"replicas"`
	} `yaml:"databases"`
	Redis struct {
		Host      string `yaml:"host"`
		Port      int    `yaml:"port"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
	Feed struct {
		PageSize          int    `yaml:"page_size"`
		RollbackOnFailure bool   `yaml:"rollback_on_failure"`
		AvatarURLTemplate string `yaml:"avatar_url_template"`
	} `yaml:"feed"`
	Events struct {
		RabbitMQURL string `yaml:"rabbitmq_url"`
		Exchange    string `yaml:"exchange"`
	} `yaml:"events"`
	Bridge struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`

		// browser origins allowed to call the bridge; requests without an
		// Origin header are not affected
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"bridge"`
	Logs struct {
		Level string `yaml:"level"`
	} `yaml:"logs"`
}

var AppConfig *ConfigSchema

// Default returns a configuration usable against a backend on localhost:8080
// with an in-memory credential store.
func Default() *ConfigSchema {
	c := &ConfigSchema{}
	c.API.BaseURL = "http://localhost:8080"
	c.API.Timeout = 15 * time.Second
	c.API.RefreshTimeout = 10 * time.Second
	c.Storage.Driver = "memory"
	c.Storage.Path = "credentials.json"
	c.Storage.SQLiteDSN = "credentials.db"
	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Redis.KeyPrefix = "socialclient:"
	c.Feed.PageSize = 20
	c.Feed.RollbackOnFailure = true
	c.Feed.AvatarURLTemplate = "https://ui-avatars.com/api/?name=%s&background=random"
	c.Events.Exchange = "client_events"
	c.Bridge.Host = "127.0.0.1"
	c.Bridge.Port = 8090
	c.Logs.Level = "info"
	return c
}

func LoadConfig(filePath string) error {
	conf := Default()
	data, err := os.ReadFile(filePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err == nil {
		if err = yaml.Unmarshal(data, conf); err != nil {
			return err
		}
	}

	// .env is optional, real environment wins over it
	_ = godotenv.Load()
	applyEnv(conf)

	AppConfig = conf
	return nil
}

func applyEnv(conf *ConfigSchema) {
	if v := os.Getenv("SOCIAL_API_BASE_URL"); v != "" {
		conf.API.BaseURL = v
	}
	if v := os.Getenv("SOCIAL_STORAGE_DRIVER"); v != "" {
		conf.Storage.Driver = v
	}
	if v := os.Getenv("SOCIAL_STORAGE_PATH"); v != "" {
		conf.Storage.Path = v
	}
	if v := os.Getenv("SOCIAL_STORAGE_PASSPHRASE"); v != "" {
		conf.Storage.Passphrase = v
	}
	if v := os.Getenv("SOCIAL_LOG_LEVEL"); v != "" {
		conf.Logs.Level = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		conf.Redis.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil {
		conf.Redis.Port = v
	}
	if v := os.Getenv("BRIDGE_ALLOWED_ORIGINS"); v != "" {
		conf.Bridge.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				conf.Bridge.AllowedOrigins = append(conf.Bridge.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		conf.Events.RabbitMQURL = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		conf.Databases.Master.Host = v
	}
	if v, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
		conf.Databases.Master.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		conf.Databases.Master.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		conf.Databases.Master.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		conf.Databases.Master.DBName = v
	}
}
