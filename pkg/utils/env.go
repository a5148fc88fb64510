package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// LoadEnv loads .env and, when env is set, .env.<env> on top of it.
// Variables already present in the process environment win.
func LoadEnv(env string) error {
	files := []string{".env"}
	if env = strings.TrimSpace(env); env != "" {
		files = append(files, ".env."+env)
	}

	var loaded int
	var errs []error
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := godotenv.Load(f); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", f, err))
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return errors.Join(errs...)
	}
	return nil
}

// GetEnv returns the trimmed value of key
func GetEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// GetBoolEnv accepts 1/true/yes/on (case-insensitive)
func GetBoolEnv(key string) bool {
	v := strings.ToLower(GetEnv(key))
	switch v {
	case "yes", "y", "on":
		return true
	}
	return cast.ToBool(v)
}

// GetIntEnv returns 0 when the value is empty or not a number
func GetIntEnv(key string) int64 {
	v, err := cast.ToInt64E(GetEnv(key))
	if err != nil {
		return 0
	}
	return v
}

// GetFloatEnv returns 0 when the value is empty or not a number
func GetFloatEnv(key string) float64 {
	v, err := cast.ToFloat64E(GetEnv(key))
	if err != nil {
		return 0
	}
	return v
}
