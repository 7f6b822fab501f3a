package config

import (
	"encoding/json"
	"os"
	"sync"
)

type Config struct {
	ListenAddr        string  `json:"listenAddr"`
	DatabasePath      string  `json:"databasePath"`
	ResolverBaseURL   string  `json:"resolverBaseURL"`
	DefaultScanQty    float64 `json:"defaultScanQty"`
	CatalogFolderPath string  `json:"catalogFolderPath"`
	PortalUserID      string  `json:"portalUserID"`
	PortalPassword    string  `json:"portalPassword"`
}

var (
	cfg Config
	mu  sync.RWMutex
)

const configFilePath = "./tanaoroshi_config.json"

func LoadConfig() (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	file, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = applyDefaults(Config{})
			return cfg, nil
		}
		return Config{}, err
	}

	var tempCfg Config
	if err := json.Unmarshal(file, &tempCfg); err != nil {
		return Config{}, err
	}
	cfg = applyDefaults(tempCfg)

	return cfg, nil
}

func SaveConfig(newCfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	newCfg = applyDefaults(newCfg)

	file, err := json.MarshalIndent(newCfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(configFilePath, file, 0644); err != nil {
		return err
	}
	cfg = newCfg
	return nil
}

func GetConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

func applyDefaults(c Config) Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "./tanaoroshi.db"
	}
	if c.ResolverBaseURL == "" {
		c.ResolverBaseURL = "https://world.openfoodfacts.org"
	}
	if c.DefaultScanQty == 0 {
		c.DefaultScanQty = 1
	}
	if c.CatalogFolderPath == "" {
		c.CatalogFolderPath = "./SOU"
	}
	return c
}
