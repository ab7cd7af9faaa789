// Package config loads the node's YAML configuration: the store backend,
// the peer and room registry, and the optional contact-plan path for
// delivery-time prediction.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opd-ai/dtchat/store"
	"github.com/opd-ai/dtchat/transport"
)

const (
	// EnvConfigPath overrides the configuration file location.
	EnvConfigPath = "CONFIG_PATH"
	// EnvPeerUUID selects which configured peer is the local one.
	EnvPeerUUID = "PEER_UUID"

	defaultConfigPath       = "default.yaml"
	defaultFileReceptionDir = "./"
)

// ErrLocalPeerUnset indicates that neither the config file nor the
// PEER_UUID environment variable names the local peer.
var ErrLocalPeerUnset = errors.New("config: local peer uuid not set")

// DBConfig selects the message store backend.
type DBConfig struct {
	// Type is "memory" (default) or "sqlite".
	Type string `yaml:"type"`
	// Path locates the sqlite database file.
	Path string `yaml:"path"`
}

// PeerConfig describes one participant, local or remote.
type PeerConfig struct {
	UUID      string   `yaml:"uuid"`
	Name      string   `yaml:"name"`
	Color     string   `yaml:"color"`
	Endpoints []string `yaml:"endpoints"`
}

// ParticipantConfig binds a room member to the endpoint used for it.
type ParticipantConfig struct {
	Peer     string `yaml:"peer"`
	Endpoint string `yaml:"endpoint"`
}

// RoomConfig describes one multicast group.
type RoomConfig struct {
	UUID         string              `yaml:"uuid"`
	Name         string              `yaml:"name"`
	Participants []ParticipantConfig `yaml:"participants"`
}

// Config is the full node configuration.
type Config struct {
	DB               DBConfig     `yaml:"db"`
	FileReceptionDir string       `yaml:"file_reception_dir"`
	ContactPlan      string       `yaml:"contact_plan"`
	LocalPeer        string       `yaml:"local_peer"`
	Peers            []PeerConfig `yaml:"peers"`
	Rooms            []RoomConfig `yaml:"rooms"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.FileReceptionDir == "" {
		cfg.FileReceptionDir = defaultFileReceptionDir
	}
	return cfg, nil
}

// LoadDefault loads from $CONFIG_PATH, falling back to ./default.yaml.
func LoadDefault() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = defaultConfigPath
	}
	return Load(path)
}

// LocalPeerUUID returns the local peer identity: $PEER_UUID when set,
// otherwise the config's local_peer field.
func (c *Config) LocalPeerUUID() (string, error) {
	if uuid := os.Getenv(EnvPeerUUID); uuid != "" {
		return uuid, nil
	}
	if c.LocalPeer != "" {
		return c.LocalPeer, nil
	}
	return "", ErrLocalPeerUnset
}

// peer converts a PeerConfig, parsing its endpoint strings.
func (pc PeerConfig) peer() (store.Peer, error) {
	p := store.Peer{UUID: pc.UUID, Name: pc.Name, Color: pc.Color}
	for _, raw := range pc.Endpoints {
		ep, err := transport.ParseEndpoint(raw)
		if err != nil {
			return store.Peer{}, fmt.Errorf("config: peer %s: %w", pc.UUID, err)
		}
		p.Endpoints = append(p.Endpoints, ep)
	}
	return p, nil
}

// BuildStore assembles the configured store backend, splitting the peer
// list into the local identity and the rest.
func (c *Config) BuildStore() (store.Store, error) {
	localUUID, err := c.LocalPeerUUID()
	if err != nil {
		return nil, err
	}

	var localPeer store.Peer
	var others []store.Peer
	found := false
	for _, pc := range c.Peers {
		p, err := pc.peer()
		if err != nil {
			return nil, err
		}
		if p.UUID == localUUID {
			localPeer = p
			found = true
			continue
		}
		others = append(others, p)
	}
	if !found {
		return nil, fmt.Errorf("config: local peer %q not in peer list", localUUID)
	}

	rooms := make([]store.Room, 0, len(c.Rooms))
	for _, rc := range c.Rooms {
		room := store.Room{UUID: rc.UUID, Name: rc.Name}
		for _, part := range rc.Participants {
			ep, err := transport.ParseEndpoint(part.Endpoint)
			if err != nil {
				return nil, fmt.Errorf("config: room %s: %w", rc.UUID, err)
			}
			room.Participants = append(room.Participants, store.Participant{
				PeerUUID: part.Peer,
				Endpoint: ep,
			})
		}
		rooms = append(rooms, room)
	}

	switch c.DB.Type {
	case "", "memory":
		return store.NewMemoryStore(localPeer, others, rooms), nil
	case "sqlite":
		if c.DB.Path == "" {
			return nil, errors.New("config: sqlite backend needs db.path")
		}
		return store.NewSQLiteStore(c.DB.Path, localPeer, others, rooms)
	default:
		return nil, fmt.Errorf("config: unknown db type %q", c.DB.Type)
	}
}
