//go:build integration

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/nidhogg/hearsay/internal/rumor"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func TestBusAgainstRedis(t *testing.T) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer container.Terminate(ctx)

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	b, err := New("redis://"+endpoint, zap.NewNop())
	if err != nil {
		t.Fatalf("create bus: %v", err)
	}
	defer b.Close()

	subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ch := b.SubscribeFrom(subCtx, "0")

	if err := b.OnDailyTick(ctx, t0, rumor.TickStats{Spread: 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-ch:
		if ev == nil || ev.Kind != KindTick || ev.Stats.Spread != 7 {
			t.Errorf("event = %+v", ev)
		}
	case <-subCtx.Done():
		t.Fatal("no event received")
	}
}
