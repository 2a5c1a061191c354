// Package config loads the fleet layout and process environment the
// device-control core and its HTTP shell need at startup: config.json
// describing which devices exist and which locks they carry, and a
// handful of environment variables for authentication and logging.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/lockrelay/lockd/internal/relay"
)

// deviceJSON mirrors the on-disk shape of one config.json entry.
type deviceJSON struct {
	Boards int `json:"boards"`
	Locks  []struct {
		ID    string `json:"id"`
		Board int    `json:"board"`
		Lock  int    `json:"lock"`
	} `json:"locks"`
}

// LoadFleet reads and validates config.json at path, returning a
// relay.Config ready to hand to relay.NewInitializer. Structural
// problems (duplicate lock ids, out-of-range board/lock numbers) are
// reported as relay.ErrConfigInvalid.
func LoadFleet(path string) (relay.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var parsed map[string]deviceJSON
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", relay.ErrConfigInvalid, path, err)
	}

	fleet := make(relay.Config, len(parsed))
	for addr, device := range parsed {
		locks := make([]relay.LockMapping, 0, len(device.Locks))
		for _, l := range device.Locks {
			locks = append(locks, relay.LockMapping{ID: l.ID, Board: l.Board, Lock: l.Lock})
		}
		fleet[addr] = relay.DeviceDescriptor{BoardCount: device.Boards, Locks: locks}
	}

	if err := relay.ValidateConfig(fleet); err != nil {
		return nil, err
	}
	return fleet, nil
}

// Env holds the process environment variables the auth and logging
// layers depend on.
type Env struct {
	SecretKey    string
	Username     string
	PasswordHash string
	LogLevel     string
}

// LoadEnv loads .env (if present, silently ignored if absent) and reads
// the required environment variables. It returns an error if USERNAME
// or PASSWORD_HASH is unset, matching the source's hard startup abort.
func LoadEnv(envFile string) (Env, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Env{}, fmt.Errorf("config: loading %s: %w", envFile, err)
	}

	env := Env{
		SecretKey:    os.Getenv("SECRET_KEY"),
		Username:     os.Getenv("USERNAME"),
		PasswordHash: os.Getenv("PASSWORD_HASH"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
	}
	if env.Username == "" || env.PasswordHash == "" {
		return Env{}, fmt.Errorf("config: USERNAME and PASSWORD_HASH must be set in environment variables")
	}
	if env.LogLevel == "" {
		env.LogLevel = "info"
	}
	return env, nil
}
