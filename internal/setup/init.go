// Package setup handles ticketd state directory initialization.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/xXKillerNoobYT/ticketd/internal/model"
	"github.com/xXKillerNoobYT/ticketd/internal/yamlutil"
	"github.com/xXKillerNoobYT/ticketd/templates"
)

const stateDirName = ".ticketd"

// Run initializes the .ticketd/ directory structure in the given project
// directory and returns the created state dir path.
func Run(projectDir string) (string, error) {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, stateDirName)

	if _, err := os.Stat(base); err == nil {
		return "", fmt.Errorf("%s already exists", base)
	}

	for _, d := range []string{"locks", "logs"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return "", fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	cfg, err := defaultConfig()
	if err != nil {
		return "", fmt.Errorf("generate config: %w", err)
	}
	if err := yamlutil.AtomicWrite(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return "", fmt.Errorf("write config.yaml: %w", err)
	}

	// An empty tickets document so the daemon and external editors agree
	// on the file shape from the start.
	ticketsContent := "schema_version: 1\ntickets: []\n"
	if err := yamlutil.AtomicWriteRaw(filepath.Join(base, "tickets.yaml"), []byte(ticketsContent)); err != nil {
		return "", fmt.Errorf("write tickets.yaml: %w", err)
	}

	if err := os.WriteFile(filepath.Join(base, "locks", "daemon.lock"), nil, 0600); err != nil {
		return "", fmt.Errorf("create daemon.lock: %w", err)
	}

	return base, nil
}

// defaultConfig parses the embedded config template.
func defaultConfig() (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}
	return &cfg, nil
}
