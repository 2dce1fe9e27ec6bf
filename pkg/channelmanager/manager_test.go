/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package channelmanager

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	"github.com/Aschie4589/QuantumHiveServer/pkg/database/utils"
	"github.com/Aschie4589/QuantumHiveServer/pkg/ephemeral"
	"github.com/Aschie4589/QuantumHiveServer/pkg/jobmanager"
)

// MockDBClient is a mock implementation of dbclient.Interface for testing
type MockDBClient struct {
	mock.Mock
}

// Implement ChannelInterface
func (m *MockDBClient) InsertChannel(ctx context.Context, channel *dbclient.Channel) (int64, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDBClient) GetChannel(ctx context.Context, id int64) (*dbclient.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbclient.Channel), args.Error(1)
}

func (m *MockDBClient) SelectChannels(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*dbclient.Channel, error) {
	args := m.Called(ctx, query, orderBy, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dbclient.Channel), args.Error(1)
}

func (m *MockDBClient) UpdateChannelStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBClient) SetChannelKraus(ctx context.Context, id int64, krausId string) error {
	args := m.Called(ctx, id, krausId)
	return args.Error(0)
}

func (m *MockDBClient) SetChannelAttempts(ctx context.Context, id int64, attempts int) error {
	args := m.Called(ctx, id, attempts)
	return args.Error(0)
}

func (m *MockDBClient) IncrementRunsSpawned(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDBClient) IncrementRunsCompleted(ctx context.Context, id int64) (int, int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *MockDBClient) UpdateBestResult(ctx context.Context, id int64, entropy float64, vectorId string) (bool, error) {
	args := m.Called(ctx, id, entropy, vectorId)
	return args.Bool(0), args.Error(1)
}

// Implement the JobInterface methods the control loop reaches
func (m *MockDBClient) InsertJob(ctx context.Context, job *dbclient.Job) (int64, error) {
	args := m.Called(ctx, job)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDBClient) GetJob(ctx context.Context, id int64) (*dbclient.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbclient.Job), args.Error(1)
}

func (m *MockDBClient) SelectJobs(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*dbclient.Job, error) {
	args := m.Called(ctx, query, orderBy, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dbclient.Job), args.Error(1)
}

func (m *MockDBClient) TransitionJob(ctx context.Context, id int64, from []string, to string) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBClient) SetJobReplaced(ctx context.Context, canceledId, replacementId int64) (bool, error) {
	args := m.Called(ctx, canceledId, replacementId)
	return args.Bool(0), args.Error(1)
}

// Implement other interfaces with empty methods (required by dbclient.Interface)
func (m *MockDBClient) CountChannels(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	return 0, nil
}
func (m *MockDBClient) CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	return 0, nil
}
func (m *MockDBClient) SelectPendingJobIds(ctx context.Context) ([]int64, error) { return nil, nil }
func (m *MockDBClient) LeaseJob(ctx context.Context, id int64, workerId string) (bool, error) {
	return false, nil
}
func (m *MockDBClient) PingJob(ctx context.Context, id int64, workerId string) (bool, error) {
	return false, nil
}
func (m *MockDBClient) CompleteJob(ctx context.Context, id int64) (bool, error) { return false, nil }
func (m *MockDBClient) RestartJob(ctx context.Context, id int64, from []string, staleBefore *time.Time) (bool, error) {
	return false, nil
}
func (m *MockDBClient) SetJobIterations(ctx context.Context, id int64, iterations int) error {
	return nil
}
func (m *MockDBClient) SetJobEntropy(ctx context.Context, id int64, entropy float64) error {
	return nil
}
func (m *MockDBClient) SetJobArtifact(ctx context.Context, id int64, fileType, fileId string) error {
	return nil
}

func (m *MockDBClient) CreateUser(ctx context.Context, user *dbclient.User) error { return nil }
func (m *MockDBClient) GetUserByUsername(ctx context.Context, username string) (*dbclient.User, error) {
	return nil, nil
}
func (m *MockDBClient) GetUserById(ctx context.Context, id int64) (*dbclient.User, error) {
	return nil, nil
}

func (m *MockDBClient) CreateFile(ctx context.Context, file *dbclient.File) error { return nil }
func (m *MockDBClient) GetFile(ctx context.Context, id string) (*dbclient.File, error) {
	return nil, nil
}

func (m *MockDBClient) Ping(ctx context.Context) error { return nil }

const inboxKey = "to_process"

func newTestManager(mockDB *MockDBClient) (*Manager, *ephemeral.MemoryStore) {
	store := ephemeral.NewMemoryStore()
	jobs := jobmanager.NewManager(mockDB, store, nil)
	return NewManager(mockDB, jobs, nil), store
}

func decodeInput(t *testing.T, job *dbclient.Job) map[string]interface{} {
	parsed := map[string]interface{}{}
	assert.NoError(t, json.Unmarshal(job.InputData, &parsed))
	return parsed
}

var activeChannelsQuery = sqrl.Eq{"status": []string{
	dbclient.ChannelStatusMinimizing, dbclient.ChannelStatusCompleted,
}}

func minimizeJobsQuery(channelId int64) sqrl.And {
	return sqrl.And{
		sqrl.Eq{"channel_id": channelId},
		sqrl.Eq{"job_type": dbclient.JobTypeMinimize},
		sqrl.GtOrEq{"entropy": 0},
	}
}

func TestTickExpandsCreatedChannel(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, store := newTestManager(mockDB)

	ch := &dbclient.Channel{
		Id:       1,
		Status:   dbclient.ChannelStatusCreated,
		InputDim: 4, OutputDim: 4, NumKraus: 8,
		MinimizationAttempts: 100,
		BestMoe:              dbclient.MoeUnset,
	}
	mockDB.On("SelectChannels", mock.Anything, nil, []string(nil), 0, 0).
		Return([]*dbclient.Channel{ch}, nil)
	mockDB.On("SelectChannels", mock.Anything, activeChannelsQuery, []string(nil), 0, 0).
		Return([]*dbclient.Channel{}, nil)

	var created *dbclient.Job
	mockDB.On("InsertJob", mock.Anything, mock.Anything).Return(int64(100), nil).Run(func(args mock.Arguments) {
		created = args.Get(1).(*dbclient.Job)
	})
	mockDB.On("UpdateChannelStatus", mock.Anything, int64(1),
		[]string{dbclient.ChannelStatusCreated}, dbclient.ChannelStatusGenerating).Return(true, nil)

	mgr.Tick(ctx)

	assert.Equal(t, dbclient.JobTypeGenerateKraus, created.JobType)
	assert.Equal(t, int64(1), created.ChannelId.Int64)
	input := decodeInput(t, created)
	assert.Equal(t, float64(4), input["input_dimension"])
	assert.Equal(t, float64(4), input["output_dimension"])
	assert.Equal(t, float64(8), input["number_kraus"])
	assert.Equal(t, float64(1), input["channel_id"])

	entries, err := store.LRange(ctx, "job_queue", 0, -1)
	assert.NoError(t, err)
	assert.Equal(t, []string{"100"}, entries)
}

func TestExpansionWithdrawsJobWhenStatusStuck(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, store := newTestManager(mockDB)

	ch := &dbclient.Channel{
		Id:       1,
		Status:   dbclient.ChannelStatusCreated,
		InputDim: 2, OutputDim: 2, NumKraus: 2,
	}
	mockDB.On("SelectChannels", mock.Anything, nil, []string(nil), 0, 0).
		Return([]*dbclient.Channel{ch}, nil)
	mockDB.On("InsertJob", mock.Anything, mock.Anything).Return(int64(100), nil)
	mockDB.On("UpdateChannelStatus", mock.Anything, int64(1),
		[]string{dbclient.ChannelStatusCreated}, dbclient.ChannelStatusGenerating).Return(false, nil)
	mockDB.On("TransitionJob", mock.Anything, int64(100),
		[]string{dbclient.JobStatusPending}, dbclient.JobStatusCanceled).Return(true, nil)
	mockDB.On("SetJobReplaced", mock.Anything, int64(100), int64(100)).Return(true, nil)

	assert.NoError(t, mgr.scheduleJobs(ctx))

	entries, err := store.LRange(ctx, "job_queue", 0, -1)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpawnBoundedByMaxJobs(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, _ := newTestManager(mockDB)
	mgr.maxJobs = 5

	// Three attempts remain and five slots are free: spawn all three.
	ch := &dbclient.Channel{
		Id:       1,
		Status:   dbclient.ChannelStatusMinimizing,
		InputDim: 4, OutputDim: 4, NumKraus: 8,
		MinimizationAttempts: 3,
	}
	mockDB.On("SelectChannels", mock.Anything, nil, []string(nil), 0, 0).
		Return([]*dbclient.Channel{ch}, nil)
	mockDB.On("InsertJob", mock.Anything, mock.Anything).Return(int64(51), nil).Once()
	mockDB.On("InsertJob", mock.Anything, mock.Anything).Return(int64(52), nil).Once()
	mockDB.On("InsertJob", mock.Anything, mock.Anything).Return(int64(53), nil).Once()
	mockDB.On("IncrementRunsSpawned", mock.Anything, int64(1)).Return(nil)

	assert.NoError(t, mgr.scheduleJobs(ctx))

	mockDB.AssertNumberOfCalls(t, "InsertJob", 3)
	mockDB.AssertNumberOfCalls(t, "IncrementRunsSpawned", 3)
}

func TestSpawnRespectsInFlightCap(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, _ := newTestManager(mockDB)
	mgr.maxJobs = 5

	// Four spawned, one completed: three in flight, so only two slots open
	// even though the budget allows six more.
	ch := &dbclient.Channel{
		Id:       1,
		Status:   dbclient.ChannelStatusMinimizing,
		InputDim: 4, OutputDim: 4, NumKraus: 8,
		MinimizationAttempts: 10,
		RunsSpawned:          4,
		RunsCompleted:        1,
	}
	mockDB.On("SelectChannels", mock.Anything, nil, []string(nil), 0, 0).
		Return([]*dbclient.Channel{ch}, nil)
	mockDB.On("InsertJob", mock.Anything, mock.Anything).Return(int64(60), nil)
	mockDB.On("IncrementRunsSpawned", mock.Anything, int64(1)).Return(nil)

	assert.NoError(t, mgr.scheduleJobs(ctx))
	mockDB.AssertNumberOfCalls(t, "InsertJob", 2)

	// A full window spawns nothing.
	full := &dbclient.Channel{
		Id:       2,
		Status:   dbclient.ChannelStatusMinimizing,
		InputDim: 4, OutputDim: 4, NumKraus: 8,
		MinimizationAttempts: 10,
		RunsSpawned:          5,
	}
	mockFull := &MockDBClient{}
	mgrFull, _ := newTestManager(mockFull)
	mgrFull.maxJobs = 5
	mockFull.On("SelectChannels", mock.Anything, nil, []string(nil), 0, 0).
		Return([]*dbclient.Channel{full}, nil)

	assert.NoError(t, mgrFull.scheduleJobs(ctx))
	mockFull.AssertNotCalled(t, "InsertJob", mock.Anything, mock.Anything)
}

func TestDrainAdoptsGeneratedKraus(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, store := newTestManager(mockDB)
	assert.NoError(t, store.RPush(ctx, inboxKey, "7"))

	mockDB.On("GetJob", mock.Anything, int64(7)).Return(&dbclient.Job{
		Id:            7,
		JobType:       dbclient.JobTypeGenerateKraus,
		Status:        dbclient.JobStatusCompleted,
		ChannelId:     utils.NullInt64(1),
		KrausOperator: utils.NullString("kf1"),
	}, nil)
	mockDB.On("SetChannelKraus", mock.Anything, int64(1), "kf1").Return(nil)
	mockDB.On("UpdateChannelStatus", mock.Anything, int64(1),
		[]string{dbclient.ChannelStatusGenerating}, dbclient.ChannelStatusMinimizing).Return(true, nil)

	assert.NoError(t, mgr.drainCompleted(ctx))

	mockDB.AssertCalled(t, "SetChannelKraus", mock.Anything, int64(1), "kf1")
	entries, err := store.LRange(ctx, inboxKey, 0, -1)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDrainPairsVectorWithMinimizeJob(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, store := newTestManager(mockDB)
	assert.NoError(t, store.RPush(ctx, inboxKey, "8"))

	mockDB.On("GetJob", mock.Anything, int64(8)).Return(&dbclient.Job{
		Id:        8,
		JobType:   dbclient.JobTypeGenerateVector,
		Status:    dbclient.JobStatusCompleted,
		ChannelId: utils.NullInt64(1),
		Vector:    utils.NullString("vf1"),
	}, nil)
	mockDB.On("GetChannel", mock.Anything, int64(1)).Return(&dbclient.Channel{
		Id:       1,
		Status:   dbclient.ChannelStatusMinimizing,
		KrausId:  utils.NullString("kf1"),
		InputDim: 4, OutputDim: 4, NumKraus: 8,
	}, nil)

	var paired *dbclient.Job
	mockDB.On("InsertJob", mock.Anything, mock.Anything).Return(int64(101), nil).Run(func(args mock.Arguments) {
		paired = args.Get(1).(*dbclient.Job)
	})

	assert.NoError(t, mgr.drainCompleted(ctx))

	assert.Equal(t, dbclient.JobTypeMinimize, paired.JobType)
	assert.Equal(t, "kf1", paired.KrausOperator.String)
	assert.Equal(t, "vf1", paired.Vector.String)
	assert.Equal(t, int64(1), paired.ChannelId.Int64)

	entries, err := store.LRange(ctx, "job_queue", 0, -1)
	assert.NoError(t, err)
	assert.Equal(t, []string{"101"}, entries)
}

func TestDrainCountsMinimizeRuns(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, store := newTestManager(mockDB)
	assert.NoError(t, store.RPush(ctx, inboxKey, "9"))

	mockDB.On("GetJob", mock.Anything, int64(9)).Return(&dbclient.Job{
		Id:        9,
		JobType:   dbclient.JobTypeMinimize,
		Status:    dbclient.JobStatusCompleted,
		ChannelId: utils.NullInt64(1),
	}, nil)
	mockDB.On("IncrementRunsCompleted", mock.Anything, int64(1)).Return(2, 3, nil)

	assert.NoError(t, mgr.drainCompleted(ctx))
	mockDB.AssertNotCalled(t, "UpdateChannelStatus",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDrainClosesChannelAtBudget(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, store := newTestManager(mockDB)
	assert.NoError(t, store.RPush(ctx, inboxKey, "9"))

	mockDB.On("GetJob", mock.Anything, int64(9)).Return(&dbclient.Job{
		Id:        9,
		JobType:   dbclient.JobTypeMinimize,
		Status:    dbclient.JobStatusCompleted,
		ChannelId: utils.NullInt64(1),
	}, nil)
	mockDB.On("IncrementRunsCompleted", mock.Anything, int64(1)).Return(3, 3, nil)
	mockDB.On("UpdateChannelStatus", mock.Anything, int64(1),
		[]string{dbclient.ChannelStatusMinimizing}, dbclient.ChannelStatusCompleted).Return(true, nil)

	assert.NoError(t, mgr.drainCompleted(ctx))
	mockDB.AssertCalled(t, "UpdateChannelStatus", mock.Anything, int64(1),
		[]string{dbclient.ChannelStatusMinimizing}, dbclient.ChannelStatusCompleted)
}

func TestDrainSkipsUnboundJob(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, store := newTestManager(mockDB)
	assert.NoError(t, store.RPush(ctx, inboxKey, "5"))

	mockDB.On("GetJob", mock.Anything, int64(5)).Return(&dbclient.Job{
		Id:      5,
		JobType: dbclient.JobTypeMinimize,
		Status:  dbclient.JobStatusCompleted,
	}, nil)

	assert.NoError(t, mgr.drainCompleted(ctx))
	mockDB.AssertNotCalled(t, "IncrementRunsCompleted", mock.Anything, mock.Anything)
}

func TestRefreshBestPicksLowestEntropy(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, _ := newTestManager(mockDB)

	ch := &dbclient.Channel{
		Id:      1,
		Status:  dbclient.ChannelStatusMinimizing,
		BestMoe: dbclient.MoeUnset,
	}
	mockDB.On("SelectChannels", mock.Anything, activeChannelsQuery, []string(nil), 0, 0).
		Return([]*dbclient.Channel{ch}, nil)
	mockDB.On("SelectJobs", mock.Anything, minimizeJobsQuery(1), []string(nil), 0, 0).
		Return([]*dbclient.Job{
			{Id: 11, JobType: dbclient.JobTypeMinimize, Entropy: 0.7, Vector: utils.NullString("v1")},
			{Id: 12, JobType: dbclient.JobTypeMinimize, Entropy: 0.2, Vector: utils.NullString("v2")},
			{Id: 13, JobType: dbclient.JobTypeMinimize, Entropy: 0.5, Vector: utils.NullString("v3")},
		}, nil)
	mockDB.On("UpdateBestResult", mock.Anything, int64(1), 0.2, "v2").Return(true, nil)

	assert.NoError(t, mgr.refreshBest(ctx))
	mockDB.AssertCalled(t, "UpdateBestResult", mock.Anything, int64(1), 0.2, "v2")
}

func TestRefreshBestSkipsWorseSamples(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, _ := newTestManager(mockDB)

	ch := &dbclient.Channel{
		Id:      1,
		Status:  dbclient.ChannelStatusCompleted,
		BestMoe: 0.2,
	}
	mockDB.On("SelectChannels", mock.Anything, activeChannelsQuery, []string(nil), 0, 0).
		Return([]*dbclient.Channel{ch}, nil)
	mockDB.On("SelectJobs", mock.Anything, minimizeJobsQuery(1), []string(nil), 0, 0).
		Return([]*dbclient.Job{
			{Id: 11, JobType: dbclient.JobTypeMinimize, Entropy: 0.5, Vector: utils.NullString("v1")},
			{Id: 12, JobType: dbclient.JobTypeMinimize, Entropy: 0.7, Vector: utils.NullString("v2")},
		}, nil)

	assert.NoError(t, mgr.refreshBest(ctx))
	mockDB.AssertNotCalled(t, "UpdateBestResult",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateChannelValidatesDimensions(t *testing.T) {
	ctx := context.Background()
	mockDB := &MockDBClient{}
	mgr, _ := newTestManager(mockDB)

	_, err := mgr.CreateChannel(ctx, 0, 4, 8, "")
	assert.Error(t, err)
	_, err = mgr.CreateChannel(ctx, 4, 4, 0, "")
	assert.Error(t, err)
	mockDB.AssertNotCalled(t, "InsertChannel", mock.Anything, mock.Anything)

	var inserted *dbclient.Channel
	mockDB.On("InsertChannel", mock.Anything, mock.Anything).Return(int64(3), nil).Run(func(args mock.Arguments) {
		inserted = args.Get(1).(*dbclient.Channel)
	})
	ch, err := mgr.CreateChannel(ctx, 4, 4, 8, "haar")
	assert.NoError(t, err)
	assert.Equal(t, int64(3), ch.Id)
	assert.Equal(t, dbclient.ChannelStatusCreated, inserted.Status)
	assert.Equal(t, dbclient.MoeUnset, inserted.BestMoe)
	assert.Equal(t, 100, inserted.MinimizationAttempts)
	assert.Equal(t, "haar", inserted.Method.String)
}
