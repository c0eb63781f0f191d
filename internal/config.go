package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host     string `env:"HOST,required=true"`
	Port     int    `env:"PORT,required=true"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	// Optional: the relay runs standalone when no Redis is configured.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	PresenceGracePeriod time.Duration `env:"PRESENCE_GRACE_PERIOD,required=true"`
	PresenceTTL         time.Duration `env:"PRESENCE_TTL,required=true"`

	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,required=true"`
	RoomBufferSize       int `env:"ROOM_BUFFER_SIZE,required=true"`
	RegistryBufferSize   int `env:"REGISTRY_BUFFER_SIZE,required=true"`
	TimelineDepth        int `env:"TIMELINE_DEPTH,required=true"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`
	HealthInterval  time.Duration `env:"HEALTH_INTERVAL,required=true"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
