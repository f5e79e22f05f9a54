package main

import (
	"fmt"
	"os"
	"strconv"
)

const (
	defaultPort        = 8080
	defaultShareFolder = "/share"

	storeSPARQL = "sparql"
	storeSQLite = "sqlite"
)

// config holds the process-level settings read from the environment.
// Store-specific settings (endpoint, database path) live with their
// packages.
type config struct {
	Port             int
	ShareFolder      string
	MetadataStore    string
	ApplicationGraph string
}

func loadConfig(defaultGraph string) (*config, error) {
	cfg := &config{
		Port:             defaultPort,
		ShareFolder:      defaultShareFolder,
		MetadataStore:    storeSPARQL,
		ApplicationGraph: defaultGraph,
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("invalid PORT %q", raw)
		}
		cfg.Port = port
	}

	if folder := os.Getenv("SHARE_FOLDER"); folder != "" {
		cfg.ShareFolder = folder
	}

	if store := os.Getenv("METADATA_STORE"); store != "" {
		if store != storeSPARQL && store != storeSQLite {
			return nil, fmt.Errorf("invalid METADATA_STORE %q, expected %q or %q", store, storeSPARQL, storeSQLite)
		}
		cfg.MetadataStore = store
	}

	if graph := os.Getenv("MU_APPLICATION_GRAPH"); graph != "" {
		cfg.ApplicationGraph = graph
	}

	return cfg, nil
}
