package config

import "time"

const (
	ProviderAPIOpenAI = "openai"
	ProviderAPIAzure  = "azure"

	// Used when the timestamp skew check is disabled.
	DefaultNonceTTL = 10 * time.Minute

	// Background maintenance
	NonceCleanupInterval = 60 * time.Second
	IdleSweepInterval    = 60 * time.Second

	// HTTP server
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 15 * time.Second

	// Request body cap for callbacks
	MaxCallbackBody = 1 << 20

	// Telegram alert limits
	MaxTelegramMessageLen = 4096
	AlertSendTimeout      = 10 * time.Second
	AlertQueueSize        = 64

	// Assistant/provider lookups
	CatalogCacheTTL = 5 * time.Minute

	// Pool sizing
	PoolMaxConns = 20
	PoolMinConns = 2
)
