package core

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

const (
	EnvLogLevel       = "GAMEWINDOW_LOG_LEVEL"
	EnvSettingsPath   = "GAMEWINDOW_SETTINGS"
	EnvValidation     = "GAMEWINDOW_VALIDATION"
	EnvWatchSettings  = "GAMEWINDOW_WATCH_SETTINGS"
	defaultDotEnvFile = ".env"
)

// LoadEnvironment reads key=value pairs from the given dotenv files (".env" when
// none are given) into the process environment. Variables already set win.
// Missing files are ignored.
func LoadEnvironment(files ...string) error {
	if len(files) == 0 {
		files = []string{defaultDotEnvFile}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.Wrapf(err, "stat %s", f)
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "loading %s", f)
		}
	}
	return nil
}

// EnvString returns the trimmed value of key or def when unset or blank.
func EnvString(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

// EnvBool parses key as a boolean, returning def when unset or unparsable.
func EnvBool(key string, def bool) bool {
	v := EnvString(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
