package app

import (
	"context"
	"fmt"
	"net"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"rapidride/internal/config"
)

// NewRedisClient connects to Redis. With nrApp set, every command is
// recorded as a datastore segment on the request's transaction.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, nrApp *newrelic.Application) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if nrApp != nil {
		client.AddHook(newRelicHook{addr: cfg.Addr})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// newRelicHook implements redis.Hook.
type newRelicHook struct {
	addr string
}

func (h newRelicHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h newRelicHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		defer h.segment(ctx, cmd.Name()).End()
		return next(ctx, cmd)
	}
}

func (h newRelicHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		defer h.segment(ctx, "pipeline").End()
		return next(ctx, cmds)
	}
}

// segment starts a datastore segment. Without a transaction in ctx it
// returns a nil segment, whose End is a no-op.
func (h newRelicHook) segment(ctx context.Context, operation string) *newrelic.DatastoreSegment {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}
	host, port, _ := net.SplitHostPort(h.addr)
	return &newrelic.DatastoreSegment{
		StartTime:    txn.StartSegmentNow(),
		Product:      newrelic.DatastoreRedis,
		Operation:    operation,
		Collection:   "rapidride",
		Host:         host,
		PortPathOrID: port,
	}
}
