package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"m3u8conv/logger"
	"m3u8conv/utils"
)

// ErrUnknownKey is returned when no credentials exist for a publish key
var ErrUnknownKey = errors.New("unknown publish key")

// Supported publish target types and the fields each one needs
var requiredFields = map[string][]string{
	"s3":          {"accessKey", "secretKey", "region", "bucket"},
	"gcs":         {"serviceAccountJSON", "bucket"},
	"sftp":        {"host", "user"},
	"directServe": {},
}

var db *pebble.DB

// OpenDB opens the Pebble DB for credentials at the specified path
func OpenDB(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		logger.Errorf("Failed to open credentials DB: %v", err)
		return err
	}
	return nil
}

// CloseDB closes the DB
func CloseDB() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// Validate checks that creds name a supported target type and carry its required fields
func Validate(creds map[string]string) error {
	kind := creds["type"]
	fields, ok := requiredFields[kind]
	if !ok {
		return fmt.Errorf("unsupported publish target type %q", kind)
	}
	for _, f := range fields {
		if creds[f] == "" {
			return fmt.Errorf("%s target requires %q", kind, f)
		}
	}
	if kind == "sftp" && creds["password"] == "" && creds["privateKey"] == "" {
		return fmt.Errorf("sftp target requires a password or privateKey")
	}
	return nil
}

// Register validates and stores creds under a freshly generated key
func Register(creds map[string]string) (string, error) {
	if err := Validate(creds); err != nil {
		return "", err
	}
	key, err := utils.GenerateRandomHex(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	if err := StoreCredentials(key, creds); err != nil {
		return "", err
	}
	return key, nil
}

// GetCredentials returns the credentials stored under key
func GetCredentials(key string) (map[string]string, error) {
	if db == nil {
		return nil, fmt.Errorf("credentials store not initialized")
	}
	value, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrUnknownKey
		}
		return nil, err
	}
	defer closer.Close()

	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// StoreCredentials stores the credentials map under the given key
func StoreCredentials(key string, creds map[string]string) error {
	if db == nil {
		return fmt.Errorf("credentials store not initialized")
	}
	encodedCreds, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return db.Set([]byte(key), encodedCreds, pebble.Sync)
}

// DeleteCredentials deletes the credentials for the given key
func DeleteCredentials(key string) error {
	if db == nil {
		return fmt.Errorf("credentials store not initialized")
	}
	return db.Delete([]byte(key), pebble.Sync)
}
