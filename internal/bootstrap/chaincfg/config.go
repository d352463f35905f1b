// Package chaincfg holds the per-chain network parameters: registry and
// resolver contract addresses, the root namespace domain, and the optional
// mailbox and cache-index endpoints. The table is an explicit value passed
// at construction time, not ambient global state; SetDefault exists only as
// a process-scoped override for wiring code.
package chaincfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"claimspace/go-backend/internal/waku"
)

type Config struct {
	ChainID         uint64      `yaml:"chainId"`
	RegistryAddress string      `yaml:"registryAddress"`
	ResolverAddress string      `yaml:"resolverAddress"`
	RootDomain      string      `yaml:"rootDomain"`
	MailboxURL      string      `yaml:"mailboxUrl"`
	CacheIndexURL   string      `yaml:"cacheIndexUrl"`
	ExchangeTopic   string      `yaml:"exchangeTopic"`
	Network         waku.Config `yaml:"network"`
}

type fileConfig struct {
	Chains []Config `yaml:"chains"`
}

func Default() Config {
	return Config{
		ChainID:       1,
		RootDomain:    "claimspace",
		ExchangeTopic: "claims-exchange",
		Network:       waku.DefaultConfig(),
	}
}

// LoadFromPath reads the chain table and returns the entry for chainID,
// merged over defaults with env overrides applied. A missing or unreadable
// file yields the defaults.
func LoadFromPath(configPath string, chainID uint64) Config {
	cfg := Default()
	cfg.ChainID = chainID

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/chains.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		for _, entry := range parsed.Chains {
			if entry.ChainID != chainID {
				continue
			}
			merged := cfg
			Merge(&merged, entry)
			ApplyEnvOverrides(&merged)
			return merged
		}
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src Config) {
	if src.RegistryAddress != "" {
		dst.RegistryAddress = src.RegistryAddress
	}
	if src.ResolverAddress != "" {
		dst.ResolverAddress = src.ResolverAddress
	}
	if src.RootDomain != "" {
		dst.RootDomain = src.RootDomain
	}
	if src.MailboxURL != "" {
		dst.MailboxURL = src.MailboxURL
	}
	if src.CacheIndexURL != "" {
		dst.CacheIndexURL = src.CacheIndexURL
	}
	if src.ExchangeTopic != "" {
		dst.ExchangeTopic = src.ExchangeTopic
	}
	if src.Network.Transport != "" {
		dst.Network.Transport = src.Network.Transport
	}
	if src.Network.Port != 0 {
		dst.Network.Port = src.Network.Port
	}
	if src.Network.BootstrapNodes != nil {
		dst.Network.BootstrapNodes = src.Network.BootstrapNodes
	}
	if src.Network.MinPeers != 0 {
		dst.Network.MinPeers = src.Network.MinPeers
	}
	if src.Network.ReconnectInterval != 0 {
		dst.Network.ReconnectInterval = src.Network.ReconnectInterval
	}
	if src.Network.ReconnectBackoffMax != 0 {
		dst.Network.ReconnectBackoffMax = src.Network.ReconnectBackoffMax
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CS_NETWORK_TRANSPORT")); v != "" {
		cfg.Network.Transport = v
	}
	if v := strings.TrimSpace(os.Getenv("CS_MAILBOX_URL")); v != "" {
		cfg.MailboxURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CS_CACHE_INDEX_URL")); v != "" {
		cfg.CacheIndexURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CS_CHAIN_ID")); v != "" {
		if parsed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ChainID = parsed
		}
	}
}

var (
	defaultMu  sync.RWMutex
	defaultCfg *Config
)

// SetDefault installs a process-wide default config for wiring code that
// cannot thread the value explicitly. Scoped to process lifetime.
func SetDefault(cfg Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg = &cfg
}

// GetDefault returns the installed default, or the built-in one.
func GetDefault() Config {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultCfg != nil {
		return *defaultCfg
	}
	return Default()
}

func (c Config) String() string {
	return fmt.Sprintf("chain %d (root %s)", c.ChainID, c.RootDomain)
}
