// Package envfile loads parameter values from dotenv-style files. Files
// later in the chain override earlier ones: .env, .env.local, .env.<name>,
// .env.<name>.local. Missing files are skipped.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads the env file chain from dir for the named environment.
// An empty name loads only .env and .env.local.
func Load(dir, name string) (map[string]string, error) {
	files := []string{".env", ".env.local"}
	if name != "" {
		files = append(files, ".env."+name, ".env."+name+".local")
	}

	vars := make(map[string]string)
	for _, file := range files {
		path := filepath.Join(dir, file)
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := parseEnvFile(content, vars); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return vars, nil
}

// Parse reads a single env file's content into a fresh map.
func Parse(content []byte) (map[string]string, error) {
	vars := make(map[string]string)
	if err := parseEnvFile(content, vars); err != nil {
		return nil, err
	}
	return vars, nil
}

// parseEnvFile parses KEY=value lines into vars, overwriting existing keys.
// Comments, blank lines, and an optional "export " prefix are accepted.
// Values may be single- or double-quoted.
func parseEnvFile(content []byte, vars map[string]string) error {
	for i, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("line %d: expected KEY=value, got %q", i+1, line)
		}

		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("line %d: empty key", i+1)
		}

		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		vars[key] = value
	}
	return nil
}
