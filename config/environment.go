package config

import (
	"os"
	"strings"
)

const appEnvVar = "APP_ENV"

const (
	// EnvironmentDevelopment is the default when APP_ENV is unset.
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
	EnvironmentStaging     = "staging"
)

var environmentAliases = map[string]string{
	"dev":        EnvironmentDevelopment,
	"prod":       EnvironmentProduction,
	"production": EnvironmentProduction,
	"stag":       EnvironmentStaging,
	"stage":      EnvironmentStaging,
}

func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// resolveEnvSpecificPath swaps the default config path for the current
// environment's file. An explicitly chosen path always wins.
func resolveEnvSpecificPath(path, defaultPath string, envPaths map[string]string) string {
	if path == "" {
		path = defaultPath
	}

	if envPath, ok := envPaths[getAppEnvironment()]; ok {
		if path == defaultPath || path == envPath {
			return envPath
		}
	}

	return path
}

// AppEnvironment reports the normalised APP_ENV value.
func AppEnvironment() string {
	return getAppEnvironment()
}

// IsProductionLike reports whether env is production or staging. Those
// deployments run headless, so interactive console output is turned off.
func IsProductionLike(env string) bool {
	switch env {
	case EnvironmentProduction, EnvironmentStaging:
		return true
	default:
		return false
	}
}
