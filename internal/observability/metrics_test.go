package observability_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/goliatone/go-forum-auth/internal/observability"
	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSink_CountsEvents(t *testing.T) {
	inmem := metrics.NewInmemSink(10*time.Second, time.Minute)
	sink, err := observability.NewMetricsSink("forumauth", inmem)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventAccountLocked}))
	require.NoError(t, sink.Record(ctx, auth.ActivityEvent{}))

	data := inmem.Data()
	require.NotEmpty(t, data)

	counters := data[len(data)-1].Counters
	require.Contains(t, counters, "forumauth.auth.login.failure")
	assert.Equal(t, 2, counters["forumauth.auth.login.failure"].Count)
	require.Contains(t, counters, "forumauth.auth.account.locked")
	assert.Equal(t, 1, counters["forumauth.auth.account.locked"].Count)
	assert.Len(t, counters, 2)
}
