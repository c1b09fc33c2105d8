// Package redis backs the ephemeral stores, authorization codes and client
// assertion IDs, with Redis so several instances can share them. Durable
// state belongs in the postgres package.
package redis

import (
	"context"
	"time"

	"github.com/pkg/errors"
	rdb "github.com/redis/go-redis/v9"
)

const defaultDialTimeout = 5 * time.Second

// Connect builds a go-redis client and verifies connectivity.
func Connect(ctx context.Context, addr, password string, db int) (*rdb.Client, error) {
	client := rdb.NewClient(&rdb.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: defaultDialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[Connect] client.Ping")
	}
	return client, nil
}
