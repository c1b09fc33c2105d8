package config

// Store backends the composition root knows how to build.
const (
	StoreBackendMemory   = "memory"
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
)

type StoreConfig interface {
	GetStoreBackend() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetPostgresDSN() string
	GetClientSeedFile() string
}

type Stores struct{}

var _ StoreConfig = Stores{}

// GetStoreBackend selects where codes, consents, clients and token records
// live: memory (default), redis, or postgres. Redis keeps the ephemeral
// stores (codes, assertion IDs); postgres keeps the durable ones.
func (Stores) GetStoreBackend() string {
	return GetEnv("STORE_BACKEND", StoreBackendMemory)
}

func (Stores) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Stores) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Stores) GetRedisDB() int {
	return GetIntEnv("REDIS_DB", 0)
}

func (Stores) GetPostgresDSN() string {
	return GetEnv("POSTGRES_DSN", "")
}

// GetClientSeedFile points at a YAML file of client registrations loaded at
// startup. Empty means no seeding.
func (Stores) GetClientSeedFile() string {
	return GetEnv("CLIENT_SEED_FILE", "")
}
