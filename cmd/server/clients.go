package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Salint/oauth2-system/internal/models"
	"github.com/Salint/oauth2-system/internal/storage"
	"gopkg.in/yaml.v3"
)

type clientsFile struct {
	Clients []models.Client `yaml:"clients"`
}

// loadClients reads the clients file at path.
func loadClients(path string) ([]models.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read clients file: %w", err)
	}

	var file clientsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse clients file: %w", err)
	}

	seen := make(map[string]bool, len(file.Clients))
	for i, c := range file.Clients {
		if c.ID == "" {
			return nil, fmt.Errorf("client %d: client_id is required", i)
		}
		if len(c.RedirectURIs) == 0 {
			return nil, fmt.Errorf("client %s: at least one redirect_uri is required", c.ID)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("client %s: duplicate client_id", c.ID)
		}
		seen[c.ID] = true
	}
	return file.Clients, nil
}

// provisionClients upserts every client into the store.
func provisionClients(ctx context.Context, store storage.ClientStorage, clients []models.Client) error {
	for i := range clients {
		if err := store.SaveClient(ctx, &clients[i]); err != nil {
			return fmt.Errorf("failed to save client %s: %w", clients[i].ID, err)
		}
	}
	return nil
}
