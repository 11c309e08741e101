/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package config holds node configuration for FlyWide.

Configuration is read once at startup from a YAML file. The listen
address doubles as the replica's identity: its IP bytes become the
node id carried in every counter context this node touches, so the
address and id width must never change over the life of the data
directory.

Example flywide.yaml:

	listen_address: 10.0.0.1
	id_width: 4
	seeds:
	  - 10.0.0.2
	  - 10.0.0.3
	mdns_service: _flywide._tcp
	storage_port: 7000
	memtable_threshold_mb: 64
	commitlog_compression: lz4
	log_level: info
	log_json: false
*/
package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"flywide/internal/errors"
)

// Config holds the node configuration.
type Config struct {
	// ListenAddress is the replica's address. Its IP bytes are the
	// node id used in counter contexts.
	ListenAddress string `yaml:"listen_address" json:"listen_address"`

	// IDWidth is the node id width in bytes: 4 for IPv4, 16 for IPv6.
	IDWidth int `yaml:"id_width" json:"id_width"`

	// Seeds are the initial contact points for the membership layer.
	Seeds []string `yaml:"seeds" json:"seeds"`

	// MDNSService names the mDNS service queried by seed discovery,
	// which runs at startup only when discovery is requested and no
	// seeds are configured. Empty selects the default service name.
	MDNSService string `yaml:"mdns_service" json:"mdns_service"`

	// StoragePort is the inter-replica port.
	StoragePort int `yaml:"storage_port" json:"storage_port"`

	// MemtableThresholdMB triggers a flush when a family's memtable
	// exceeds this size.
	MemtableThresholdMB int `yaml:"memtable_threshold_mb" json:"memtable_threshold_mb"`

	// CommitLogCompression selects the commit log payload compression
	// algorithm: none, gzip, lz4, snappy or zstd.
	CommitLogCompression string `yaml:"commitlog_compression" json:"commitlog_compression"`

	// LogLevel is the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json" json:"log_json"`
}

// DefaultConfig returns sensible defaults for a single-node setup.
func DefaultConfig() *Config {
	return &Config{
		ListenAddress:        "127.0.0.1",
		IDWidth:              4,
		Seeds:                []string{},
		StoragePort:          7000,
		MemtableThresholdMB:  64,
		CommitLogCompression: "lz4",
		LogLevel:             "info",
		LogJSON:              false,
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.InvalidConfig(err.Error()).WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	ip := net.ParseIP(c.ListenAddress)
	if ip == nil {
		return errors.InvalidConfig(fmt.Sprintf("listen_address %q is not an IP address", c.ListenAddress))
	}

	switch c.IDWidth {
	case 4:
		if ip.To4() == nil {
			return errors.InvalidConfig("id_width 4 requires an IPv4 listen_address")
		}
	case 16:
	default:
		return errors.InvalidConfig(fmt.Sprintf("id_width must be 4 or 16, got %d", c.IDWidth))
	}

	if c.StoragePort <= 0 || c.StoragePort > 65535 {
		return errors.InvalidConfig(fmt.Sprintf("storage_port %d out of range", c.StoragePort))
	}

	if c.MemtableThresholdMB <= 0 {
		return errors.InvalidConfig("memtable_threshold_mb must be positive")
	}

	switch c.CommitLogCompression {
	case "", "none", "gzip", "lz4", "snappy", "zstd":
	default:
		return errors.InvalidConfig(fmt.Sprintf("unknown commitlog_compression %q", c.CommitLogCompression))
	}

	return nil
}

// NodeIP returns the listen address parsed and truncated to IDWidth.
func (c *Config) NodeIP() net.IP {
	ip := net.ParseIP(c.ListenAddress)
	if ip == nil {
		return nil
	}
	if c.IDWidth == 4 {
		return ip.To4()
	}
	return ip.To16()
}
