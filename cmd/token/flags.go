package token

import (
	"errors"
	"time"

	"curation-governance-backend/models"

	"github.com/spf13/pflag"
)

const (
	CallerKey  = "caller"
	TTLKey     = "ttl"
	EnvFileKey = "env-file"
)

var errNoCaller = errors.New("--caller is required")

func AddFlags(flags *pflag.FlagSet) {
	flags.String(CallerKey, "", "JWT的sub，即调用方地址 (required)")
	flags.Duration(TTLKey, 24*time.Hour, "令牌有效期")
	flags.String(EnvFileKey, ".env", "环境变量文件")
}

type Config struct {
	Caller  models.Address
	TTL     time.Duration
	EnvFile string
}

func ParseFlags(flags *pflag.FlagSet) (*Config, error) {
	caller, err := flags.GetString(CallerKey)
	if err != nil {
		return nil, err
	}
	if caller == "" {
		return nil, errNoCaller
	}
	ttl, err := flags.GetDuration(TTLKey)
	if err != nil {
		return nil, err
	}
	envFile, err := flags.GetString(EnvFileKey)
	if err != nil {
		return nil, err
	}
	return &Config{
		Caller:  models.Address(caller),
		TTL:     ttl,
		EnvFile: envFile,
	}, nil
}
