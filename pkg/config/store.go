package config

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// firstRunGroup coalesces concurrent Read calls for the same path so that
// tests (or multiple proxy instances sharing a data dir) can't race on
// generating and writing the default forwarding secret.
var firstRunGroup singleflight.Group

// Sentinel errors surfaced from Read.
var (
	ErrForwardingSecretMissing     = errors.New("config: forwarding secret is required for this forwarding mode but is empty or missing")
	ErrForwardingSecretPathInvalid = errors.New("config: forwarding secret path resolves to a directory")
)

const defaultSecretFileName = "forwarding.secret"

// secretAlphabet is the printable character set used to generate the
// default forwarding secret on first run.
const secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const generatedSecretLength = 12

// ConfigStore is the immutable configuration snapshot produced once at
// boot. Its zero value is not usable; construct with Read.
type ConfigStore struct {
	cfg *Config
}

// Config returns the frozen snapshot.
func (s *ConfigStore) Config() *Config { return s.cfg }

// Validate logs every discovered fault and reports whether the config is
// free of faults. The caller decides whether to abort startup on false.
func (s *ConfigStore) Validate() bool {
	faults := Validate(s.cfg)
	for _, f := range faults {
		zap.L().Error("configuration validation fault", zap.String("field", f.Field), zap.String("reason", f.Message))
	}
	return len(faults) == 0
}

// Read loads the configuration at path, migrates it to CurrentVersion,
// resolves the forwarding secret, and freezes the result.
//
// On first-time startup -- neither path nor the default secret file exist
// -- a default config is written to path and a random secret is written to
// forwarding.secret alongside it.
func Read(path string) (*ConfigStore, error) {
	dir := filepath.Dir(path)
	secretPath := filepath.Join(dir, defaultSecretFileName)

	_, configErr := os.Stat(path)
	_, secretErr := os.Stat(secretPath)
	firstRun := os.IsNotExist(configErr) && os.IsNotExist(secretErr)

	if os.IsNotExist(configErr) {
		if err := writeDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("config: writing default config: %w", err)
		}
	} else if configErr != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, configErr)
	}

	if firstRun {
		_, err, _ := firstRunGroup.Do(secretPath, func() (interface{}, error) {
			return nil, writeGeneratedSecret(secretPath)
		})
		if err != nil {
			return nil, fmt.Errorf("config: writing default forwarding secret: %w", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	t := make(tree)
	if _, err := toml.Decode(string(raw), &t); err != nil {
		return nil, fmt.Errorf("config: parsing toml: %w", err)
	}

	before := t.configVersion()
	migrate(t, zap.L())
	if t.configVersion() != before {
		if err := writeTree(path, t); err != nil {
			return nil, fmt.Errorf("config: writing migrated config: %w", err)
		}
	}

	cfg := treeToConfig(t)

	secret, err := resolveForwardingSecret(cfg, dir)
	if err != nil {
		return nil, err
	}
	cfg.ForwardingSecret = secret

	return &ConfigStore{cfg: cfg}, nil
}

// resolveForwardingSecret implements the precedence order:
// env VELOCITY_FORWARDING_SECRET (non-empty) -> forwarding-secret-file
// config key -> default forwarding.secret.
func resolveForwardingSecret(cfg *Config, dir string) ([]byte, error) {
	if env := os.Getenv("VELOCITY_FORWARDING_SECRET"); env != "" {
		return []byte(env), nil
	}

	path := filepath.Join(dir, defaultSecretFileName)
	if cfg.ForwardingSecretFile != "" {
		path = cfg.ForwardingSecretFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if requiresSecret(cfg.PlayerInfoForwardingMode) {
				return nil, ErrForwardingSecretMissing
			}
			return nil, nil
		}
		return nil, fmt.Errorf("config: stat forwarding secret file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, ErrForwardingSecretPathInvalid
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading forwarding secret file %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 && requiresSecret(cfg.PlayerInfoForwardingMode) {
		return nil, ErrForwardingSecretMissing
	}
	return data, nil
}

func requiresSecret(mode ForwardingMode) bool {
	return mode == ForwardingModern || mode == ForwardingBungeeGuard
}

func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(Default()); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeTree(path string, t tree) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(map[string]interface{}(t)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeGeneratedSecret(path string) error {
	secret, err := generateSecret(generatedSecretLength)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(secret), 0o600)
}

// generateSecret returns a random printable string of length n drawn from
// secretAlphabet.
func generateSecret(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = secretAlphabet[idx.Int64()]
	}
	return string(out), nil
}
