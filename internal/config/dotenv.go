package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvPath returns the absolute path to the dotenv file in HomeDir.
func DotEnvPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".env"), nil
}

// LoadDotEnv reads the dotenv file and returns key/value pairs. A missing
// file yields an empty map.
func LoadDotEnv() (map[string]string, error) {
	p, err := DotEnvPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("cannot stat dotenv file %s: %w", p, err)
	}
	out, err := godotenv.Read(p)
	if err != nil {
		return nil, fmt.Errorf("cannot read dotenv file %s: %w", p, err)
	}
	return out, nil
}

// GetConfigValue returns the effective value for key, using process environment variables
// first and falling back to the dotenv file.
func GetConfigValue(key string) (string, error) {
	if v := os.Getenv(key); v != "" {
		return v, nil
	}
	dotenv, err := LoadDotEnv()
	if err != nil {
		return "", err
	}
	return dotenv[key], nil
}

// EnsureDotEnvTemplate creates the dotenv file if it does not already exist.
func EnsureDotEnvTemplate() error {
	p, err := DotEnvPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(p); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("cannot stat dotenv file %s: %w", p, err)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("cannot create dir for %s: %w", p, err)
	}
	tmpl := map[string]string{
		"EDGERAG_EMBEDDINGS_PROVIDER": "",
		"EDGERAG_EMBEDDINGS_MODEL":    "",
		"EDGERAG_EMBEDDINGS_API_KEY":  "",
		"EDGERAG_EMBEDDINGS_BASE_URL": "",
	}
	body, err := godotenv.Marshal(tmpl)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, []byte(body+"\n"), 0o600); err != nil {
		return fmt.Errorf("cannot write dotenv template %s: %w", p, err)
	}
	return nil
}
