package grpc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type flag struct{ v atomic.Bool }

func (f *flag) AnyAvailable() bool { return f.v.Load() }

func TestServer_HealthFollowsAvailability(t *testing.T) {
	avail := &flag{}
	avail.v.Store(true)

	s, err := NewServer(&Config{Addr: "127.0.0.1:0", Availability: avail, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	go func() { _ = s.Start() }()
	defer func() { _ = s.Shutdown(context.Background()) }()

	conn, err := grpc.NewClient(s.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}

	assert.Eventually(t, func() bool { return check() == healthpb.HealthCheckResponse_SERVING }, 3*time.Second, 20*time.Millisecond)

	avail.v.Store(false)
	assert.Eventually(t, func() bool { return check() == healthpb.HealthCheckResponse_NOT_SERVING }, 3*time.Second, 20*time.Millisecond)
}
