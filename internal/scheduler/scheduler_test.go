package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotly/falcon/internal/domain"
	"github.com/plotly/falcon/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDeps() (Deps, *testutil.MockQueryRepo) {
	queries := &testutil.MockQueryRepo{}
	deps := Deps{
		Queries: queries,
		Connections: &testutil.MockConnectionRepo{
			GetFn: func(id string) (*domain.Connection, error) {
				return &domain.Connection{ID: id, Dialect: "sqlite", Params: map[string]any{}}, nil
			},
		},
		Credentials: &testutil.MockCredentialResolver{
			Creds: &domain.Credentials{Username: "alice", APIKey: "key"},
		},
		Gateway: &testutil.MockGateway{
			QueryFn: func(_ context.Context, _ string, _ *domain.Connection) (*domain.QueryResult, error) {
				return &domain.QueryResult{Columnnames: []string{"a"}, Rows: [][]any{{1}}}, nil
			},
		},
		Grid: &testutil.MockGridClient{
			UpdateGridFn: func(_ context.Context, _ *domain.QueryResult, _, _ string) ([]string, error) {
				return []string{"u1"}, nil
			},
		},
		MinRefreshInterval: 60,
		Logger:             discardLogger(),
	}
	return deps, queries
}

func testDef(fid string) *domain.QueryDefinition {
	return &domain.QueryDefinition{
		Fid:          fid,
		Query:        "SELECT 1",
		ConnectionID: "sqlite-1",
		Requestor:    "alice",
		CronInterval: "* * * * *",
	}
}

func TestScheduleQuery_PersistsWithNextScheduledAt(t *testing.T) {
	t.Parallel()

	deps, queries := testDeps()
	s := New(deps)
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleQuery(context.Background(), testDef("alice:1")))

	stored, err := queries.Get("alice:1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Greater(t, stored.NextScheduledAt, time.Now().Add(-time.Second).UnixMilli())
	assert.True(t, s.Scheduled("alice:1"))
}

func TestScheduleQuery_Validation(t *testing.T) {
	t.Parallel()

	isValidation := func(err error) bool {
		var e *domain.ValidationError
		return errors.As(err, &e)
	}
	isInvalidName := func(err error) bool {
		var e *domain.InvalidNameError
		return errors.As(err, &e)
	}
	isInvalidSchedule := func(err error) bool {
		var e *domain.InvalidScheduleError
		return errors.As(err, &e)
	}

	tests := []struct {
		name    string
		mutate  func(def *domain.QueryDefinition)
		wantErr func(err error) bool
	}{
		{
			name:    "missing fid",
			mutate:  func(def *domain.QueryDefinition) { def.Fid = "" },
			wantErr: isValidation,
		},
		{
			name:    "missing requestor",
			mutate:  func(def *domain.QueryDefinition) { def.Requestor = "" },
			wantErr: isValidation,
		},
		{
			name:    "name too long",
			mutate:  func(def *domain.QueryDefinition) { def.Name = strings.Repeat("x", domain.MaxNameLength+1) },
			wantErr: isInvalidName,
		},
		{
			name: "no schedule at all",
			mutate: func(def *domain.QueryDefinition) {
				def.CronInterval = ""
				def.RefreshInterval = 0
			},
			wantErr: isInvalidSchedule,
		},
		{
			name: "interval below minimum",
			mutate: func(def *domain.QueryDefinition) {
				def.CronInterval = ""
				def.RefreshInterval = 30
			},
			wantErr: isInvalidSchedule,
		},
		{
			name:    "malformed cron",
			mutate:  func(def *domain.QueryDefinition) { def.CronInterval = "not a cron" },
			wantErr: isInvalidSchedule,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deps, queries := testDeps()
			s := New(deps)
			t.Cleanup(s.Stop)

			def := testDef("alice:2")
			tt.mutate(def)
			err := s.ScheduleQuery(context.Background(), def)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error type: %v", err)

			stored, err := queries.Get(def.Fid)
			require.NoError(t, err)
			assert.Nil(t, stored, "rejected definition must not be persisted")
		})
	}
}

func TestScheduleQuery_ReplaceKeepsOneTimer(t *testing.T) {
	t.Parallel()

	deps, queries := testDeps()
	s := New(deps)
	t.Cleanup(s.Stop)

	first := testDef("alice:3")
	first.Name = "original"
	require.NoError(t, s.ScheduleQuery(context.Background(), first))

	second := testDef("alice:3")
	second.Name = "replacement"
	second.CronInterval = ""
	second.RefreshInterval = 3600
	require.NoError(t, s.ScheduleQuery(context.Background(), second))

	stored, err := queries.Get("alice:3")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "replacement", stored.Name)
	assert.Equal(t, int64(3600), stored.RefreshInterval)

	s.mu.Lock()
	assert.Len(t, s.jobs, 1)
	s.mu.Unlock()
}

func TestRunJob_Success(t *testing.T) {
	t.Parallel()

	deps, queries := testDeps()
	s := New(deps)
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleQuery(context.Background(), testDef("alice:4")))
	require.NoError(t, s.RunJob(context.Background(), "alice:4"))

	stored, err := queries.Get("alice:4")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.LastExecution)
	assert.Equal(t, domain.ExecutionStatusOK, stored.LastExecution.Status)
	assert.Equal(t, int64(1), stored.LastExecution.RowCount)
	assert.Empty(t, stored.LastExecution.ErrorMessage)
	assert.NotZero(t, stored.LastExecution.StartedAt)
	assert.NotZero(t, stored.LastExecution.CompletedAt)
	assert.Equal(t, []string{"u1"}, stored.UIDs)
}

func TestRunJob_UsesRequestorCredentials(t *testing.T) {
	t.Parallel()

	// bob is a collaborator on alice's grid; only bob has stored credentials.
	deps, queries := testDeps()
	deps.Credentials = &testutil.MockCredentialResolver{
		ResolveFn: func(username string) (*domain.Credentials, error) {
			if username == "bob" {
				return &domain.Credentials{Username: "bob", APIKey: "bobs-key"}, nil
			}
			return nil, nil
		},
	}
	s := New(deps)
	t.Cleanup(s.Stop)

	def := testDef("alice:6")
	def.Requestor = "bob"
	require.NoError(t, s.ScheduleQuery(context.Background(), def))
	require.NoError(t, s.RunJob(context.Background(), "alice:6"))

	stored, err := queries.Get("alice:6")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.LastExecution)
	assert.Equal(t, domain.ExecutionStatusOK, stored.LastExecution.Status)
	assert.Empty(t, stored.LastExecution.ErrorMessage)
}

func TestRunJob_FailureStages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mutate     func(deps *Deps)
		wantPrefix string
	}{
		{
			name: "missing credentials",
			mutate: func(deps *Deps) {
				deps.Credentials = &testutil.MockCredentialResolver{}
			},
			wantPrefix: "Unauthenticated: ",
		},
		{
			name: "data source failure",
			mutate: func(deps *Deps) {
				deps.Gateway = &testutil.MockGateway{
					QueryFn: func(_ context.Context, _ string, _ *domain.Connection) (*domain.QueryResult, error) {
						return nil, fmt.Errorf("syntax error near SELEC")
					},
				}
			},
			wantPrefix: "QueryExecutionError: ",
		},
		{
			name: "grid store failure",
			mutate: func(deps *Deps) {
				deps.Grid = &testutil.MockGridClient{
					UpdateGridFn: func(_ context.Context, _ *domain.QueryResult, _, _ string) ([]string, error) {
						return nil, &domain.PlotlyAPIError{Err: fmt.Errorf("status 500")}
					},
				}
			},
			wantPrefix: "PlotlyApiError: ",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deps, queries := testDeps()
			tt.mutate(&deps)
			s := New(deps)
			t.Cleanup(s.Stop)

			require.NoError(t, s.ScheduleQuery(context.Background(), testDef("alice:5")))
			err := s.RunJob(context.Background(), "alice:5")
			require.Error(t, err)

			stored, getErr := queries.Get("alice:5")
			require.NoError(t, getErr)
			require.NotNil(t, stored)
			require.NotNil(t, stored.LastExecution)
			assert.Equal(t, domain.ExecutionStatusFailed, stored.LastExecution.Status)
			assert.True(t, strings.HasPrefix(stored.LastExecution.ErrorMessage, tt.wantPrefix),
				"errorMessage %q should start with %q", stored.LastExecution.ErrorMessage, tt.wantPrefix)
			assert.True(t, s.Scheduled("alice:5"), "failures keep the schedule armed")
		})
	}
}

func TestRunJob_GridDeletedRemovesQuery(t *testing.T) {
	t.Parallel()

	deps, queries := testDeps()
	deps.Grid = &testutil.MockGridClient{
		UpdateGridFn: func(_ context.Context, _ *domain.QueryResult, _, _ string) ([]string, error) {
			return nil, domain.ErrGridDeleted
		},
	}
	s := New(deps)
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleQuery(context.Background(), testDef("alice:6")))
	require.NoError(t, s.RunJob(context.Background(), "alice:6"), "grid deletion is not an execution failure")

	stored, err := queries.Get("alice:6")
	require.NoError(t, err)
	assert.Nil(t, stored, "stored definition must be removed")
	assert.False(t, s.Scheduled("alice:6"), "timer must be disarmed")
}

func TestFire_SkipsOverlappingRun(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	deps, _ := testDeps()
	deps.Gateway = &testutil.MockGateway{
		QueryFn: func(_ context.Context, _ string, _ *domain.Connection) (*domain.QueryResult, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-release
			}
			return &domain.QueryResult{Columnnames: []string{"a"}, Rows: [][]any{{1}}}, nil
		},
	}
	s := New(deps)
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleQuery(context.Background(), testDef("alice:7")))

	done := make(chan struct{})
	go func() {
		s.fire("alice:7")
		close(done)
	}()
	<-started

	// Second firing overlaps the blocked first one and must be dropped.
	s.fire("alice:7")
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	<-done

	// With the first run finished, firing works again.
	s.fire("alice:7")
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadQueries_SkipsBrokenDefinitions(t *testing.T) {
	t.Parallel()

	deps, queries := testDeps()
	require.NoError(t, queries.Save(testDef("alice:8")))
	broken := testDef("alice:9")
	broken.CronInterval = "bad"
	require.NoError(t, queries.Save(broken))

	s := New(deps)
	t.Cleanup(s.Stop)

	require.NoError(t, s.LoadQueries(context.Background()))
	assert.True(t, s.Scheduled("alice:8"))
	assert.False(t, s.Scheduled("alice:9"))
}

func TestClearQuery_Idempotent(t *testing.T) {
	t.Parallel()

	deps, queries := testDeps()
	s := New(deps)
	t.Cleanup(s.Stop)

	require.NoError(t, s.ScheduleQuery(context.Background(), testDef("alice:10")))
	s.ClearQuery("alice:10")
	assert.False(t, s.Scheduled("alice:10"))

	// Clearing again, and clearing unknown fids, must not panic.
	s.ClearQuery("alice:10")
	s.ClearQuery("never:seen")

	stored, err := queries.Get("alice:10")
	require.NoError(t, err)
	assert.NotNil(t, stored, "ClearQuery leaves the stored definition alone")
}
