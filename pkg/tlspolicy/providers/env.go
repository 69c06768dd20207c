package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/polisai/tlsgate/pkg/tlspolicy"
)

// godotenv.Load mutates the process environment, so concurrent resolutions
// must not interleave dotenv loads.
var dotenvMu sync.Mutex

// EnvOperation sources options from environment variables. Each argument is a
// string of the form "<option_key>=<ENV_NAME>"; the option is emitted with
// the variable's current value, in argument order. An argument of the form
// "dotenv:<path>" loads the named dotenv file into the environment first
// (existing variables are not overridden).
//
// A referenced variable that is unset or empty is an explicit error: option
// material sourced from the environment must never silently resolve to an
// empty value.
func EnvOperation(_ context.Context, args ...any) (tlspolicy.Options, error) {
	var opts tlspolicy.Options
	for _, arg := range args {
		spec, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("env operation: argument must be a string, got %T", arg)
		}

		if path, isDotenv := strings.CutPrefix(spec, "dotenv:"); isDotenv {
			dotenvMu.Lock()
			err := godotenv.Load(path)
			dotenvMu.Unlock()
			if err != nil {
				return nil, fmt.Errorf("env operation: load dotenv %s: %w", path, err)
			}
			continue
		}

		key, envName, found := strings.Cut(spec, "=")
		if !found || key == "" || envName == "" {
			return nil, fmt.Errorf("env operation: malformed mapping %q, want key=ENV_NAME", spec)
		}

		value := os.Getenv(envName)
		if value == "" {
			return nil, fmt.Errorf("env operation: environment variable %s is not set", envName)
		}
		opts = append(opts, tlspolicy.Opt(key, value))
	}
	return opts, nil
}
