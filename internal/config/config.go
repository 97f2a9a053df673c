// Package config parses the server's bracketed-section config file. The
// grammar is hand-scanned rather than routed through an ecosystem INI
// library because `[server]` sections repeat — each one describes another
// listener — and general-purpose INI libraries treat a repeated section
// header as overwriting the same map entry, not appending to a list (see
// SPEC_FULL.md §10.3).
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Server is one `[server]` section: a listener address plus optional TLS
// material.
type Server struct {
	Address            string
	Port               int
	Certificate        string
	PrivateKey         string
	PrivateKeyPassword string
}

// TLS reports whether any TLS field was set.
func (s Server) TLS() bool {
	return s.Certificate != "" || s.PrivateKey != "" || s.PrivateKeyPassword != ""
}

// Config is the fully-parsed contents of a server config file.
type Config struct {
	LogFile string
	User    string
	Group   string
	Servers []Server
}

const (
	defaultPlainPort = 5144
	defaultTLSPort   = 5145
)

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the bracketed-section grammar from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}

	var section string
	var current *Server

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("config: line %d: malformed section header %q", lineNo, line)
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			switch section {
			case "general":
				current = nil
			case "server":
				cfg.Servers = append(cfg.Servers, Server{Port: defaultPlainPort})
				current = &cfg.Servers[len(cfg.Servers)-1]
			default:
				return nil, fmt.Errorf("config: line %d: unknown section %q", lineNo, section)
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config: line %d: expected key = value", lineNo)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch section {
		case "general":
			switch key {
			case "log_file":
				cfg.LogFile = value
			case "user":
				cfg.User = value
			case "group":
				cfg.Group = value
			default:
				return nil, fmt.Errorf("config: line %d: unknown key %q in [general]", lineNo, key)
			}
		case "server":
			if current == nil {
				return nil, fmt.Errorf("config: line %d: key %q outside any section", lineNo, key)
			}
			switch key {
			case "address":
				current.Address = value
			case "port":
				p, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("config: line %d: bad port %q: %w", lineNo, value, err)
				}
				current.Port = p
			case "certificate":
				current.Certificate = value
			case "private_key":
				current.PrivateKey = value
			case "private_key_password":
				current.PrivateKeyPassword = value
			default:
				return nil, fmt.Errorf("config: line %d: unknown key %q in [server]", lineNo, key)
			}
		default:
			return nil, fmt.Errorf("config: line %d: key %q outside any section", lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scanning: %w", err)
	}

	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		hasCert := s.Certificate != ""
		hasKey := s.PrivateKey != ""
		if hasCert != hasKey {
			return nil, fmt.Errorf("config: server %d: certificate and private_key must both be set or both be absent", i)
		}
		if s.Port == defaultPlainPort && s.TLS() {
			s.Port = defaultTLSPort
		}
	}

	return cfg, nil
}
