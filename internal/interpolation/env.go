// Package interpolation expands ${VAR} and ${VAR:default} references
// against the process environment. The config loader runs every document
// through it before parsing, so secrets like the redis password never have
// to live in the file.
package interpolation

import (
	"errors"
	"fmt"
	"os"
	"regexp"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:)?([^}]*)\}`)

// ExpandEnvVars replaces ${VAR} references with the environment value and
// ${VAR:default} references with the default when VAR is unset. A reference
// without a default to an unset variable is an error; all such errors are
// joined.
func ExpandEnvVars(input string) (string, error) {
	if input == "" {
		return "", nil
	}

	var missing []error
	result := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		name, hasDefault, fallback := parts[1], parts[2] == ":", parts[3]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return fallback
		}
		missing = append(missing, fmt.Errorf("environment variable not defined: %s", name))
		return match
	})
	return result, errors.Join(missing...)
}
