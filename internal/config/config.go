package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	TCPPort  string `yaml:"tcp-port" env:"TCP_PORT" env-default:"9000"`
	HTTPPort string `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Game     Game   `yaml:"game"`
	Redis    Redis  `yaml:"redis"`
}

type Game struct {
	MinPlayers      int `yaml:"min-players" env-default:"2"`
	MaxPlayers      int `yaml:"max-players" env-default:"4"`
	RoundCap        int `yaml:"round-cap" env-default:"500"`
	TurnTimeoutSecs int `yaml:"turn-timeout-secs" env-default:"30"`
}

type Redis struct {
	Enabled bool   `yaml:"enabled" env-default:"false"`
	Host    string `yaml:"host" env-default:"localhost"`
	Port    string `yaml:"port" env-default:"6379"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

func (that *Game) TurnTimeout() time.Duration {
	return time.Duration(that.TurnTimeoutSecs) * time.Second
}
