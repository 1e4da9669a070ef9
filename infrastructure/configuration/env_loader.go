package configuration

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// LoadEnvFromFile loads KEY=VALUE pairs from one or more files (e.g., config.env, .env)
// It ignores lines starting with # and empty lines. Existing env vars are not overridden.
func LoadEnvFromFile(paths ...string) {
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			// Support KEY=VALUE and KEY="VALUE"
			if idx := strings.Index(line, "="); idx != -1 {
				key := strings.TrimSpace(line[:idx])
				val := strings.TrimSpace(line[idx+1:])
				val = strings.Trim(val, "\"'")
				if key != "" {
					if _, exists := os.LookupEnv(key); !exists {
						_ = os.Setenv(key, val)
					}
				}
			}
		}
		_ = f.Close()
	}
}

// Reload re-applies env overrides on top of the loaded config. Call after LoadEnvFromFile.
func Reload() {
	initDatabase(&C)
	initApp(&C)
	initPublish(&C)
	initPlatforms(&C)
}

// getConfigValue gets value from environment first, then config, then default
func getConfigValue(configValue, envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	// Placeholders like YOUR_API_KEY count as unset
	if configValue != "" && !strings.HasPrefix(configValue, "YOUR_") {
		return configValue
	}
	return defaultValue
}

func getIntValue(configValue int, envKey string, defaultValue int) int {
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if configValue > 0 {
		return configValue
	}
	return defaultValue
}
