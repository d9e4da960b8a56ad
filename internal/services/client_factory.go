package services

import (
	"catalog-sync-service/internal/clients"
	"catalog-sync-service/internal/clients/square"
	"catalog-sync-service/internal/config"
)

// ClientFactory builds the remote client for one run's resolved settings
type ClientFactory func(settings *SyncSettings) clients.CatalogClient

// NewClientFactory returns a factory for the configured remote API
func NewClientFactory(cfg *config.Config) ClientFactory {
	return func(settings *SyncSettings) clients.CatalogClient {
		return square.NewClient(square.Options{
			BaseURL:     settings.BaseURL,
			AccessToken: settings.AccessToken,
			APIVersion:  cfg.APIVersion,
			Timeout:     cfg.HTTPTimeout,
			RateLimit:   cfg.RateLimit,
		})
	}
}
