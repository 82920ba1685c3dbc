package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	storeVar           = "MILITEX_STORE"
	storePathVar       = "MILITEX_STORE_PATH"
	storePassphraseVar = "MILITEX_STORE_PASSPHRASE"
	redisURLVar        = "MILITEX_REDIS_URL"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

type Storage struct {
	file *File
}

var _ StorageConfig = Storage{}

func (s Storage) GetStore() string {
	return strings.ToLower(GetEnv(storeVar, orDefault(s.file.Store, StoreFile)))
}

func (s Storage) GetStorePath() string {
	return GetEnv(storePathVar, orDefault(s.file.StorePath, defaultStorePath(s.GetStore())))
}

func (s Storage) GetStorePassphrase() string {
	return GetEnv(storePassphraseVar, s.file.StorePassphrase)
}

func (s Storage) GetRedisURL() string {
	return GetEnv(redisURLVar, orDefault(s.file.RedisURL, "redis://localhost:6379/0"))
}

func defaultStorePath(store string) string {
	name := "session.json"
	if store == StoreSQLite {
		name = "session.db"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".militex", name)
	}
	return filepath.Join(home, ".militex", name)
}
