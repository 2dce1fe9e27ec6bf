/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Aschie4589/QuantumHiveServer/pkg/auth"
	"github.com/Aschie4589/QuantumHiveServer/pkg/channelmanager"
	"github.com/Aschie4589/QuantumHiveServer/pkg/config"
	dbclient "github.com/Aschie4589/QuantumHiveServer/pkg/database/client"
	"github.com/Aschie4589/QuantumHiveServer/pkg/database/utils"
	"github.com/Aschie4589/QuantumHiveServer/pkg/ephemeral"
	"github.com/Aschie4589/QuantumHiveServer/pkg/jobmanager"
	"github.com/Aschie4589/QuantumHiveServer/pkg/token"
	"github.com/Aschie4589/QuantumHiveServer/pkg/uploader"
)

// MockDBClient is a mock implementation of dbclient.Interface for testing
type MockDBClient struct {
	mock.Mock
}

func (m *MockDBClient) GetUserByUsername(ctx context.Context, username string) (*dbclient.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbclient.User), args.Error(1)
}

func (m *MockDBClient) CreateUser(ctx context.Context, user *dbclient.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockDBClient) GetJob(ctx context.Context, id int64) (*dbclient.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbclient.Job), args.Error(1)
}

func (m *MockDBClient) LeaseJob(ctx context.Context, id int64, workerId string) (bool, error) {
	args := m.Called(ctx, id, workerId)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBClient) TransitionJob(ctx context.Context, id int64, from []string, to string) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBClient) InsertChannel(ctx context.Context, channel *dbclient.Channel) (int64, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDBClient) CreateFile(ctx context.Context, file *dbclient.File) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockDBClient) GetFile(ctx context.Context, id string) (*dbclient.File, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbclient.File), args.Error(1)
}

func (m *MockDBClient) SetJobArtifact(ctx context.Context, id int64, fileType, fileId string) error {
	args := m.Called(ctx, id, fileType, fileId)
	return args.Error(0)
}

// Implement other interfaces with empty methods (required by dbclient.Interface)
func (m *MockDBClient) GetUserById(ctx context.Context, id int64) (*dbclient.User, error) {
	return nil, nil
}
func (m *MockDBClient) InsertJob(ctx context.Context, job *dbclient.Job) (int64, error) {
	return 0, nil
}
func (m *MockDBClient) SelectJobs(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*dbclient.Job, error) {
	return nil, nil
}
func (m *MockDBClient) CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	return 0, nil
}
func (m *MockDBClient) SelectPendingJobIds(ctx context.Context) ([]int64, error) { return nil, nil }
func (m *MockDBClient) PingJob(ctx context.Context, id int64, workerId string) (bool, error) {
	return false, nil
}
func (m *MockDBClient) CompleteJob(ctx context.Context, id int64) (bool, error) { return false, nil }
func (m *MockDBClient) RestartJob(ctx context.Context, id int64, from []string, staleBefore *time.Time) (bool, error) {
	return false, nil
}
func (m *MockDBClient) SetJobReplaced(ctx context.Context, canceledId, replacementId int64) (bool, error) {
	return false, nil
}
func (m *MockDBClient) SetJobIterations(ctx context.Context, id int64, iterations int) error {
	return nil
}
func (m *MockDBClient) SetJobEntropy(ctx context.Context, id int64, entropy float64) error {
	return nil
}
func (m *MockDBClient) GetChannel(ctx context.Context, id int64) (*dbclient.Channel, error) {
	return nil, nil
}
func (m *MockDBClient) SelectChannels(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*dbclient.Channel, error) {
	return nil, nil
}
func (m *MockDBClient) CountChannels(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	return 0, nil
}
func (m *MockDBClient) UpdateChannelStatus(ctx context.Context, id int64, from []string, to string) (bool, error) {
	return false, nil
}
func (m *MockDBClient) SetChannelKraus(ctx context.Context, id int64, krausId string) error {
	return nil
}
func (m *MockDBClient) SetChannelAttempts(ctx context.Context, id int64, attempts int) error {
	return nil
}
func (m *MockDBClient) IncrementRunsSpawned(ctx context.Context, id int64) error { return nil }
func (m *MockDBClient) IncrementRunsCompleted(ctx context.Context, id int64) (int, int, error) {
	return 0, 0, nil
}
func (m *MockDBClient) UpdateBestResult(ctx context.Context, id int64, entropy float64, vectorId string) (bool, error) {
	return false, nil
}
func (m *MockDBClient) Ping(ctx context.Context) error { return nil }

type testEnv struct {
	engine *gin.Engine
	mockDB *MockDBClient
	store  *ephemeral.MemoryStore
	authn  *auth.Authenticator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.SetValue("auth.jwt_secret", "handlers-test-secret")
	config.SetValue("storage.save_path", t.TempDir())
	config.SetValue("storage.tmp_path", t.TempDir())

	mockDB := &MockDBClient{}
	store := ephemeral.NewMemoryStore()
	authn, err := auth.NewAuthenticator(store)
	require.NoError(t, err)
	tokens := token.NewManager(store)
	jobs := jobmanager.NewManager(mockDB, store, nil)
	channels := channelmanager.NewManager(mockDB, jobs, nil)
	assembler, err := uploader.NewAssembler(mockDB, tokens, nil)
	require.NoError(t, err)

	engine := gin.New()
	InitRouters(engine, NewHandler(mockDB, authn, tokens, jobs, channels, assembler))
	return &testEnv{engine: engine, mockDB: mockDB, store: store, authn: authn}
}

// registerUser makes the mock resolve username to a user row for the bearer
// middleware and returns a valid access token.
func (env *testEnv) registerUser(t *testing.T, id int64, username, role string) string {
	t.Helper()
	hash, err := auth.HashPassword("open-sesame-123")
	require.NoError(t, err)
	env.mockDB.On("GetUserByUsername", mock.Anything, username).Return(&dbclient.User{
		Id:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
	}, nil)
	access, _, err := env.authn.IssuePair(username)
	require.NoError(t, err)
	return access
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.engine.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func formRequest(method, path string, form url.Values, bearer string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Hive.01001", getJSON(t, rec)["errorCode"])
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, 1, "worker1", dbclient.RoleUser)

	form := url.Values{"username": {"worker1"}, "password": {"open-sesame-123"}}
	rec := env.do(formRequest(http.MethodPost, "/auth/login", form, ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := getJSON(t, rec)
	assert.Equal(t, "bearer", body["token_type"])
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.Header.Set("Authorization", "Bearer "+body["access_token"].(string))
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "worker1", getJSON(t, rec)["user"])
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, 1, "worker1", dbclient.RoleUser)

	form := url.Values{"username": {"worker1"}, "password": {"wrong-password"}}
	rec := env.do(formRequest(http.MethodPost, "/auth/login", form, ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.registerUser(t, 1, "worker1", dbclient.RoleUser)
	_, refresh, err := env.authn.IssuePair("worker1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("refresh", refresh)
	rec := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, getJSON(t, rec)["refresh_token"])

	// Replaying the redeemed token must fail: it was revoked on rotation.
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.Header.Set("refresh", refresh)
	rec = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Hive.01003", getJSON(t, rec)["errorCode"])
}

func TestRequestJobRepliesNoContentWhenQueueEmpty(t *testing.T) {
	env := newTestEnv(t)
	access := env.registerUser(t, 1, "worker1", dbclient.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/jobs/request", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := env.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRequestJobLeasesQueuedJob(t *testing.T) {
	env := newTestEnv(t)
	access := env.registerUser(t, 1, "worker1", dbclient.RoleUser)
	require.NoError(t, env.store.RPush(context.Background(), "job_queue", "7"))

	env.mockDB.On("LeaseJob", mock.Anything, int64(7), "worker1").Return(true, nil)
	env.mockDB.On("GetJob", mock.Anything, int64(7)).Return(&dbclient.Job{
		Id:            7,
		JobType:       dbclient.JobTypeMinimize,
		Status:        dbclient.JobStatusRunning,
		KrausOperator: utils.NullString("kraus001"),
		Vector:        utils.NullString("vect0001"),
		ChannelId:     utils.NullInt64(3),
		WorkerId:      utils.NullString("worker1"),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/request", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := getJSON(t, rec)
	assert.Equal(t, float64(7), body["job_id"])
	assert.Equal(t, dbclient.JobTypeMinimize, body["job_type"])
	assert.Equal(t, "kraus001", body["kraus_id"])
	assert.Equal(t, "vect0001", body["vector_id"])
	assert.Equal(t, float64(3), body["channel_id"])
}

func TestChannelCreateRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	worker := env.registerUser(t, 1, "worker1", dbclient.RoleUser)
	admin := env.registerUser(t, 2, "root", dbclient.RoleAdmin)

	form := url.Values{"input_dim": {"4"}, "output_dim": {"4"}, "num_kraus": {"3"}}
	rec := env.do(formRequest(http.MethodPost, "/channels/create", form, worker))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.mockDB.On("InsertChannel", mock.Anything, mock.AnythingOfType("*client.Channel")).Return(int64(3), nil)
	rec = env.do(formRequest(http.MethodPost, "/channels/create", form, admin))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", getJSON(t, rec)["result"])
}

func TestJobLifecycleEnforcesOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerUser(t, 1, "worker1", dbclient.RoleUser)
	other := env.registerUser(t, 2, "worker2", dbclient.RoleUser)

	env.mockDB.On("GetJob", mock.Anything, int64(9)).Return(&dbclient.Job{
		Id:       9,
		JobType:  dbclient.JobTypeGenerateVector,
		Status:   dbclient.JobStatusRunning,
		WorkerId: utils.NullString("worker1"),
	}, nil)

	form := url.Values{"job_id": {"9"}}
	rec := env.do(formRequest(http.MethodPost, "/jobs/pause", form, other))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.mockDB.On("TransitionJob", mock.Anything, int64(9),
		[]string{dbclient.JobStatusRunning}, dbclient.JobStatusPaused).Return(true, nil)
	rec = env.do(formRequest(http.MethodPost, "/jobs/pause", form, owner))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", getJSON(t, rec)["result"])
}

func multipartChunk(t *testing.T, path string, fields map[string]string, payload []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for key, val := range fields {
		require.NoError(t, w.WriteField(key, val))
	}
	part, err := w.CreateFormFile("file", "chunk.bin")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadAssembleDownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	access := env.registerUser(t, 1, "worker1", dbclient.RoleUser)

	rec := env.do(formRequest(http.MethodPost, "/files/request-upload", url.Values{}, access))
	require.Equal(t, http.StatusOK, rec.Code)
	uploadUrl := getJSON(t, rec)["upload_url"].(string)
	require.True(t, strings.HasPrefix(uploadUrl, "/files/upload/"))

	var saved *dbclient.File
	env.mockDB.On("CreateFile", mock.Anything, mock.AnythingOfType("*client.File")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*dbclient.File) }).Return(nil)
	env.mockDB.On("SetJobArtifact", mock.Anything, int64(7), dbclient.FileTypeKraus, mock.Anything).Return(nil)

	// Chunks 1 and 3 of 3 arrive first; the server holds the session open.
	payloads := map[string][]byte{
		"1": []byte("alpha-"),
		"2": []byte("beta-"),
		"3": []byte("gamma"),
	}
	for _, index := range []string{"1", "3"} {
		req := multipartChunk(t, uploadUrl, map[string]string{
			"job_id": "7", "file_type": "kraus", "session_id": "sess-rt",
			"chunk_index": index, "total_chunks": "3",
		}, payloads[index])
		req.Header.Set("Authorization", "Bearer "+access)
		rec = env.do(req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, getJSON(t, rec)["message"], "accepted")
	}

	req := multipartChunk(t, uploadUrl, map[string]string{
		"job_id": "7", "file_type": "kraus", "session_id": "sess-rt",
		"chunk_index": "2", "total_chunks": "3",
	}, payloads["2"])
	req.Header.Set("Authorization", "Bearer "+access)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := getJSON(t, rec)
	assert.Equal(t, "file uploaded and assembled", body["message"])
	fileId := body["file_id"].(string)
	assert.Len(t, fileId, 8)

	require.NotNil(t, saved)
	content, err := os.ReadFile(saved.FullPath)
	require.NoError(t, err)
	assert.Equal(t, "alpha-beta-gamma", string(content))

	// The burned upload token must refuse any further chunk.
	req = multipartChunk(t, uploadUrl, map[string]string{
		"job_id": "7", "file_type": "kraus", "session_id": "sess-rt",
		"chunk_index": "1", "total_chunks": "3",
	}, payloads["1"])
	req.Header.Set("Authorization", "Bearer "+access)
	rec = env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.mockDB.On("GetFile", mock.Anything, fileId).Return(saved, nil)
	rec = env.do(formRequest(http.MethodPost, "/files/request-download",
		url.Values{"file_id": {fileId}}, access))
	require.Equal(t, http.StatusOK, rec.Code)
	downloadUrl := getJSON(t, rec)["download_url"].(string)

	req = httptest.NewRequest(http.MethodGet, downloadUrl, nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alpha-beta-gamma", rec.Body.String())

	// A download token yields bytes exactly once.
	req = httptest.NewRequest(http.MethodGet, downloadUrl, nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec = env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownloadTokenIsUserBound(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerUser(t, 1, "worker1", dbclient.RoleUser)
	other := env.registerUser(t, 2, "worker2", dbclient.RoleUser)

	dir := t.TempDir()
	path := dir + "/artifact.dat"
	require.NoError(t, os.WriteFile(path, []byte("secret-bytes"), 0o640))
	env.mockDB.On("GetFile", mock.Anything, "kraus007").Return(&dbclient.File{
		Id: "kraus007", Type: dbclient.FileTypeKraus, FullPath: path,
	}, nil)

	rec := env.do(formRequest(http.MethodPost, "/files/request-download",
		url.Values{"file_id": {"kraus007"}}, owner))
	require.Equal(t, http.StatusOK, rec.Code)
	downloadUrl := getJSON(t, rec)["download_url"].(string)

	req := httptest.NewRequest(http.MethodGet, downloadUrl, nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = env.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Hive.04003", getJSON(t, rec)["errorCode"])
}

func TestSignupValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		body string
	}{
		{"missing username", `{"email":"a@example.com","password":"long-enough-pw"}`},
		{"malformed email", `{"username":"w","email":"nope","password":"long-enough-pw"}`},
		{"short password", `{"username":"w","email":"a@example.com","password":"short"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/users/signup", strings.NewReader(tc.body))
			rec := env.do(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSignupCreatesUser(t *testing.T) {
	env := newTestEnv(t)
	env.mockDB.On("CreateUser", mock.Anything, mock.AnythingOfType("*client.User")).
		Run(func(args mock.Arguments) {
			user := args.Get(1).(*dbclient.User)
			user.Id = 11
			assert.Equal(t, dbclient.RoleUser, user.Role)
			assert.NotEqual(t, "a-fine-password", user.PasswordHash)
		}).Return(nil)

	body := `{"username":"newworker","email":"new@example.com","password":"a-fine-password"}`
	req := httptest.NewRequest(http.MethodPost, "/users/signup", strings.NewReader(body))
	rec := env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	rsp := getJSON(t, rec)
	assert.Equal(t, float64(11), rsp["id"])
	assert.Equal(t, "newworker", rsp["username"])
	assert.Nil(t, rsp["password_hash"])
}

func TestPingRejectsReclaimedLease(t *testing.T) {
	env := newTestEnv(t)
	access := env.registerUser(t, 1, "worker1", dbclient.RoleUser)

	// The stubbed PingJob reports no matching running row, as after a sweep.
	form := url.Values{"job_id": {"5"}}
	rec := env.do(formRequest(http.MethodPost, "/jobs/ping", form, access))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Hive.02003", getJSON(t, rec)["errorCode"])
}
