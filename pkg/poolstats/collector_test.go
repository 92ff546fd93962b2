package poolstats

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// pgxStatMock returns fixed numbers for every statistic.
type pgxStatMock struct {
	acquireCount         int64
	acquireDuration      time.Duration
	canceledAcquireCount int64
	emptyAcquireCount    int64
	acquiredConns        int32
	constructingConns    int32
	idleConns            int32
	maxConns             int32
	totalConns           int32
}

var _ stat = (*pgxStatMock)(nil)

func (m *pgxStatMock) AcquireCount() int64            { return m.acquireCount }
func (m *pgxStatMock) AcquireDuration() time.Duration { return m.acquireDuration }
func (m *pgxStatMock) AcquiredConns() int32           { return m.acquiredConns }
func (m *pgxStatMock) CanceledAcquireCount() int64    { return m.canceledAcquireCount }
func (m *pgxStatMock) ConstructingConns() int32       { return m.constructingConns }
func (m *pgxStatMock) EmptyAcquireCount() int64       { return m.emptyAcquireCount }
func (m *pgxStatMock) IdleConns() int32               { return m.idleConns }
func (m *pgxStatMock) MaxConns() int32                { return m.maxConns }
func (m *pgxStatMock) TotalConns() int32              { return m.totalConns }

func TestDescribeEmitsEveryDescriptor(t *testing.T) {
	c := newCollector(func() stat { return &pgxStatMock{} }, t.Name())

	ch := make(chan *prometheus.Desc, 32)
	c.Describe(ch)
	close(ch)

	unique := make(map[string]struct{})
	for desc := range ch {
		unique[desc.String()] = struct{}{}
	}
	require.Len(t, unique, 9)
}

func TestCollectReportsStatValues(t *testing.T) {
	mock := &pgxStatMock{
		acquireCount:         1,
		acquireDuration:      2 * time.Second,
		acquiredConns:        3,
		canceledAcquireCount: 4,
		constructingConns:    5,
		emptyAcquireCount:    6,
		idleConns:            7,
		maxConns:             8,
		totalConns:           9,
	}
	c := newCollector(func() stat { return mock }, t.Name())

	want := strings.NewReader(`# HELP pgxpool_acquire_count Cumulative count of successful acquires from the pool.
# TYPE pgxpool_acquire_count counter
pgxpool_acquire_count{application_name="TestCollectReportsStatValues"} 1
# HELP pgxpool_acquire_duration_seconds_total Total duration of all successful acquires from the pool in seconds.
# TYPE pgxpool_acquire_duration_seconds_total counter
pgxpool_acquire_duration_seconds_total{application_name="TestCollectReportsStatValues"} 2
# HELP pgxpool_acquired_conns Number of currently acquired connections in the pool.
# TYPE pgxpool_acquired_conns gauge
pgxpool_acquired_conns{application_name="TestCollectReportsStatValues"} 3
# HELP pgxpool_canceled_acquire_count Cumulative count of acquires from the pool that were canceled by a context.
# TYPE pgxpool_canceled_acquire_count counter
pgxpool_canceled_acquire_count{application_name="TestCollectReportsStatValues"} 4
# HELP pgxpool_constructing_conns Number of conns with construction in progress in the pool.
# TYPE pgxpool_constructing_conns gauge
pgxpool_constructing_conns{application_name="TestCollectReportsStatValues"} 5
# HELP pgxpool_empty_acquire Cumulative count of successful acquires from the pool that waited for a resource to be released or constructed because the pool was empty.
# TYPE pgxpool_empty_acquire counter
pgxpool_empty_acquire{application_name="TestCollectReportsStatValues"} 6
# HELP pgxpool_idle_conns Number of currently idle conns in the pool.
# TYPE pgxpool_idle_conns gauge
pgxpool_idle_conns{application_name="TestCollectReportsStatValues"} 7
# HELP pgxpool_max_conns Maximum size of the pool.
# TYPE pgxpool_max_conns gauge
pgxpool_max_conns{application_name="TestCollectReportsStatValues"} 8
# HELP pgxpool_total_conns Total number of resources currently in the pool. The value is the sum of ConstructingConns, AcquiredConns, and IdleConns.
# TYPE pgxpool_total_conns gauge
pgxpool_total_conns{application_name="TestCollectReportsStatValues"} 9
`)

	ls, err := testutil.CollectAndLint(c)
	require.NoError(t, err)
	for _, l := range ls {
		t.Log(l)
	}
	require.NoError(t, testutil.CollectAndCompare(c, want))
}
