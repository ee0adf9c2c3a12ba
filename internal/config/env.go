// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/mediafit/internal/log"
	"github.com/rs/zerolog"
)

// Environment keys. ENV wins over the profile file.
const (
	EnvFFmpegBin     = "MEDIAFIT_FFMPEG_BIN"
	EnvFFprobeBin    = "MEDIAFIT_FFPROBE_BIN"
	EnvYtDlpBin      = "MEDIAFIT_YTDLP_BIN"
	EnvDataDir       = "MEDIAFIT_DATA_DIR"
	EnvOutputDir     = "MEDIAFIT_OUTPUT_DIR"
	EnvMaxFileSizeGB = "MEDIAFIT_MAX_FILE_SIZE_GB"
	EnvOnSizeExceed  = "MEDIAFIT_ON_SIZE_EXCEED"
	EnvConcurrency   = "MEDIAFIT_CONCURRENCY"
	EnvStatusListen  = "MEDIAFIT_STATUS_LISTEN"
	EnvLogFormat     = "MEDIAFIT_LOG_FORMAT"
	EnvLogFile       = "MEDIAFIT_LOG_FILE"
	EnvTraceEnabled  = "MEDIAFIT_TRACING_ENABLED"
	EnvTraceEndpoint = "MEDIAFIT_TRACING_ENDPOINT"
)

// parseEnv looks up key and converts it with parse. Empty or invalid values
// fall back to defaultValue; every outcome is logged with its source.
func parseEnv[T any](logger zerolog.Logger, key string, defaultValue T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(key)
	if !ok {
		logger.Debug().
			Str("key", key).
			Interface("default", defaultValue).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	if v == "" {
		logger.Debug().
			Str("key", key).
			Interface("default", defaultValue).
			Str("source", "default").
			Msg("using default value (environment variable is empty)")
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("key", key).
			Str("value", v).
			Interface("default", defaultValue).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Interface("value", parsed).
		Str("source", "environment").
		Msg("using environment variable")
	return parsed
}

// ParseString reads a string from environment variable or returns default value.
func ParseString(key, defaultValue string) string {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(s string) (string, error) { return s, nil })
}

// ParseInt reads an integer from environment variable or returns default value.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(log.WithComponent("config"), key, defaultValue, strconv.Atoi)
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseDuration reads a Go duration ("5s") from environment variable.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(log.WithComponent("config"), key, defaultValue, time.ParseDuration)
}

// ParseBool reads a boolean from environment variable or returns default value.
// It accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, strconv.ErrSyntax
	})
}
