package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jrsteele09/go-oauth2-server/auth"
	"github.com/jrsteele09/go-oauth2-server/auth/flowrepo"
	"github.com/jrsteele09/go-oauth2-server/authcode"
	"github.com/jrsteele09/go-oauth2-server/clientauth"
	"github.com/jrsteele09/go-oauth2-server/clients"
	"github.com/jrsteele09/go-oauth2-server/consent"
	"github.com/jrsteele09/go-oauth2-server/internal/config"
	"github.com/jrsteele09/go-oauth2-server/internal/metrics"
	"github.com/jrsteele09/go-oauth2-server/server"
	"github.com/jrsteele09/go-oauth2-server/storage/postgres"
	redisstore "github.com/jrsteele09/go-oauth2-server/storage/redis"
	"github.com/jrsteele09/go-oauth2-server/token"
	"github.com/jrsteele09/go-oauth2-server/token/keys"
	"github.com/jrsteele09/go-oauth2-server/tokenstore"
)

const (
	// keyPrefix namespaces every Redis key this server writes.
	keyPrefix       = "oauth2:"
	janitorInterval = time.Minute
	// Expired token records stay queryable for a day before the Postgres
	// janitor removes them.
	tokenRetention = 24 * time.Hour
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()

	c := config.New()
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := buildDependencies(ctx, c)
	if err != nil {
		return fmt.Errorf("buildDependencies: %w", err)
	}
	defer deps.close()

	srv, err := server.New(c, deps.authService, deps.metrics)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return listenAndServe(httpServer) })
	for _, janitor := range deps.janitors {
		group.Go(func() error { return janitor(groupCtx) })
	}
	group.Go(func() error {
		waitForStopSignal(groupCtx)
		cancel() // Stops the janitors once the server is asked to drain
		return shutdown(httpServer)
	})

	return group.Wait()
}

// dependencies is everything run wires together before serving. Janitors are
// background pruning loops the errgroup supervises; closers release pools and
// connections in reverse build order.
type dependencies struct {
	authService *auth.AuthorizationService
	metrics     *metrics.Metrics
	janitors    []func(context.Context) error
	closers     []func()
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDependencies(ctx context.Context, c config.Config) (*dependencies, error) {
	deps := &dependencies{metrics: metrics.New()}

	stores, tokenStore, replay, err := buildStores(ctx, c, deps)
	if err != nil {
		return nil, err
	}

	keyring, err := buildKeyring(c)
	if err != nil {
		return nil, err
	}

	managerOptions := []token.ManagerOption{
		token.WithIssuer(c.GetBaseURL()),
		token.WithTokenExpiry(
			c.GetDefaultAccessTokenExpiry(),
			c.GetDefaultIDTokenExpiry(),
			c.GetDefaultRefreshTokenExpiry(),
		),
	}
	if c.GetRefreshTokenReuse() {
		managerOptions = append(managerOptions, token.WithRefreshTokenReuse())
	}
	tokenManager := token.New(tokenStore, keyring, managerOptions...)

	clientAuth := clientauth.New(stores.Clients, c.GetBaseURL()+server.RouteOAuth2Token, replay)

	authService, err := auth.NewAuthorizationService(stores, tokenManager, clientAuth,
		auth.WithCodeTTL(c.GetAuthCodeTimeout()),
		auth.WithFlowTTL(c.GetFlowTimeout()),
	)
	if err != nil {
		return nil, fmt.Errorf("auth.NewAuthorizationService: %w", err)
	}
	deps.authService = authService

	if seedFile := c.GetClientSeedFile(); seedFile != "" {
		count, err := stores.Clients.SeedFromFile(ctx, seedFile)
		if err != nil {
			return nil, fmt.Errorf("seed clients: %w", err)
		}
		log.Printf("Seeded %d clients from %s\n", count, seedFile)
	}

	return deps, nil
}

// buildStores wires the store implementations for the configured backend:
// everything in memory by default, ephemeral state (codes, flows, assertion
// IDs) in Redis for the redis backend, and durable state (clients, consents,
// token records) in Postgres for the postgres backend. Postgres deployments
// still use Redis for the ephemeral stores.
func buildStores(ctx context.Context, c config.Config, deps *dependencies) (auth.Stores, tokenstore.Store, clientauth.ReplayCache, error) {
	backend := c.GetStoreBackend()
	switch backend {
	case config.StoreBackendMemory:
		return buildMemoryStores(deps)
	case config.StoreBackendRedis:
		return buildRedisStores(ctx, c, deps)
	case config.StoreBackendPostgres:
		return buildPostgresStores(ctx, c, deps)
	}
	return auth.Stores{}, nil, nil, fmt.Errorf("unknown store backend %q", backend)
}

func buildMemoryStores(deps *dependencies) (auth.Stores, tokenstore.Store, clientauth.ReplayCache, error) {
	codes := authcode.NewInMemoryStore()
	flows := flowrepo.NewInMemoryRepo()
	tokens := tokenstore.NewInMemoryStore()

	deps.janitors = append(deps.janitors,
		func(ctx context.Context) error { return codes.RunJanitor(ctx, janitorInterval) },
		func(ctx context.Context) error { return flows.RunJanitor(ctx, janitorInterval) },
		func(ctx context.Context) error { return tokens.RunJanitor(ctx, janitorInterval) },
	)

	stores := auth.Stores{
		Clients:  clients.NewRegistry(clients.NewInMemoryRepo()),
		Consents: consent.NewStore(consent.NewInMemoryRepo()),
		Codes:    codes,
		Flows:    flows,
	}
	return stores, tokens, clientauth.NewMemoryReplayCache(), nil
}

func buildRedisStores(ctx context.Context, c config.Config, deps *dependencies) (auth.Stores, tokenstore.Store, clientauth.ReplayCache, error) {
	client, err := redisstore.Connect(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB())
	if err != nil {
		return auth.Stores{}, nil, nil, fmt.Errorf("redis connect: %w", err)
	}
	deps.closers = append(deps.closers, func() { _ = client.Close() })

	tokens := tokenstore.NewInMemoryStore()
	deps.janitors = append(deps.janitors,
		func(ctx context.Context) error { return tokens.RunJanitor(ctx, janitorInterval) },
	)

	stores := auth.Stores{
		Clients:  clients.NewRegistry(clients.NewInMemoryRepo()),
		Consents: consent.NewStore(consent.NewInMemoryRepo()),
		Codes:    redisstore.NewCodeStore(client, keyPrefix),
		Flows:    redisstore.NewFlowRepo(client, keyPrefix),
	}
	return stores, tokens, redisstore.NewReplayCache(client, keyPrefix), nil
}

func buildPostgresStores(ctx context.Context, c config.Config, deps *dependencies) (auth.Stores, tokenstore.Store, clientauth.ReplayCache, error) {
	pool, err := postgres.Connect(ctx, c.GetPostgresDSN())
	if err != nil {
		return auth.Stores{}, nil, nil, fmt.Errorf("postgres connect: %w", err)
	}
	deps.closers = append(deps.closers, pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		return auth.Stores{}, nil, nil, fmt.Errorf("postgres migrate: %w", err)
	}

	client, err := redisstore.Connect(ctx, c.GetRedisAddr(), c.GetRedisPassword(), c.GetRedisDB())
	if err != nil {
		return auth.Stores{}, nil, nil, fmt.Errorf("redis connect: %w", err)
	}
	deps.closers = append(deps.closers, func() { _ = client.Close() })

	tokens := postgres.NewTokenStore(pool)
	deps.janitors = append(deps.janitors, func(ctx context.Context) error {
		return pruneTokens(ctx, tokens)
	})

	stores := auth.Stores{
		Clients:  clients.NewRegistry(postgres.NewClientsRepo(pool)),
		Consents: consent.NewStore(postgres.NewConsentsRepo(pool)),
		Codes:    redisstore.NewCodeStore(client, keyPrefix),
		Flows:    redisstore.NewFlowRepo(client, keyPrefix),
	}
	return stores, tokens, redisstore.NewReplayCache(client, keyPrefix), nil
}

// pruneTokens removes token records that have been expired for longer than
// the retention window.
func pruneTokens(ctx context.Context, store *postgres.TokenStore) error {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := store.DeleteExpired(ctx, time.Now().Add(-tokenRetention)); err != nil {
				zlog.Err(err).Msg("token prune failed")
			}
		}
	}
}

// buildKeyring loads the configured signing key, or generates an ephemeral
// pair when none is configured. Tokens signed with an ephemeral key do not
// survive a restart.
func buildKeyring(c config.Config) (*keys.Keyring, error) {
	keyID := c.GetSigningKeyID()
	if keyID == "" {
		keyID = uuid.New().String()
	}

	if keyFile := c.GetSigningKeyFile(); keyFile != "" {
		pemData, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key %s: %w", keyFile, err)
		}
		keyPair, err := keys.LoadKeyPairFromPEM(keyID, string(pemData))
		if err != nil {
			return nil, fmt.Errorf("load signing key: %w", err)
		}
		return keys.NewKeyring(keyPair, keys.WithRetirementWindow(c.GetKeyRetirementWindow()))
	}

	keyPair, err := keys.GenerateRSAKeyPair(keyID, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return keys.NewKeyring(keyPair, keys.WithRetirementWindow(c.GetKeyRetirementWindow()))
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal(ctx context.Context) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
