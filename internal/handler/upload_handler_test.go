package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"uphub-go/internal/chunk"
	"uphub-go/internal/config"
	"uphub-go/internal/middleware"
	"uphub-go/internal/model"
	"uphub-go/internal/pipeline"
	"uphub-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeUserRepo 以内存 map 实现 UserRepository，按上传令牌索引。
type fakeUserRepo struct {
	byToken map[string]*model.User
}

func (f *fakeUserRepo) Create(user *model.User) error { return nil }

func (f *fakeUserRepo) FindByUsername(username string) (*model.User, error) {
	for _, u := range f.byToken {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindByUploadToken(token string) (*model.User, error) {
	if u, ok := f.byToken[token]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) FindByID(userID uint) (*model.User, error) {
	for _, u := range f.byToken {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) Update(user *model.User) error { return nil }

func (f *fakeUserRepo) FindWithPagination(offset, limit int) ([]model.User, int64, error) {
	return nil, 0, nil
}

// fakeFileRepo 以内存切片实现 FileRepository。
type fakeFileRepo struct {
	records []*model.FileRecord
	aliases []*model.InvisibleAlias
	nextID  uint
}

func (f *fakeFileRepo) CreateRecord(record *model.FileRecord) error {
	f.nextID++
	record.ID = f.nextID
	f.records = append(f.records, record)
	return nil
}

func (f *fakeFileRepo) CreateAlias(alias *model.InvisibleAlias) error {
	f.aliases = append(f.aliases, alias)
	return nil
}

func (f *fakeFileRepo) FindByName(name string) (*model.FileRecord, error) {
	for _, r := range f.records {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeFileRepo) ResolveName(name string) (*model.FileRecord, error) {
	return f.FindByName(name)
}

func (f *fakeFileRepo) FindByUserID(userID uint) ([]model.FileRecord, error) {
	return nil, nil
}

func (f *fakeFileRepo) DecrementViews(recordID uint) (int, error) { return -1, nil }

func (f *fakeFileRepo) DeleteRecord(record *model.FileRecord) error { return nil }

// fakeBlobStore 把对象留在内存里。
type fakeBlobStore struct {
	objects map[string][]byte
}

func (f *fakeBlobStore) Save(_ context.Context, name string, data []byte, _ string) error {
	f.objects[name] = data
	return nil
}

// fakeRateLimitRepo 同时实现 CooldownStore 与 MergeLocker。
type fakeRateLimitRepo struct {
	mu        sync.Mutex
	cooldowns map[uint]int64
	locks     map[string]bool
}

func newFakeRateLimitRepo() *fakeRateLimitRepo {
	return &fakeRateLimitRepo{
		cooldowns: make(map[uint]int64),
		locks:     make(map[string]bool),
	}
}

func (f *fakeRateLimitRepo) GetCooldown(_ context.Context, userID uint) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ms, ok := f.cooldowns[userID]
	return ms, ok, nil
}

func (f *fakeRateLimitRepo) SetCooldown(_ context.Context, userID uint, expiresAtMs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cooldowns[userID] = expiresAtMs
	return nil
}

func (f *fakeRateLimitRepo) ClearCooldown(_ context.Context, userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cooldowns, userID)
	return nil
}

func (f *fakeRateLimitRepo) AcquireMergeLock(_ context.Context, userID uint, uploadID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%s", userID, uploadID)
	if f.locks[key] {
		return false, nil
	}
	f.locks[key] = true
	return true, nil
}

func (f *fakeRateLimitRepo) ReleaseMergeLock(_ context.Context, userID uint, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, fmt.Sprintf("%d:%s", userID, uploadID))
	return nil
}

// uploadTestEnv 聚合一次端到端上传测试所需的全部协作方。
type uploadTestEnv struct {
	router    *gin.Engine
	files     *fakeFileRepo
	blob      *fakeBlobStore
	rateLimit *fakeRateLimitRepo
	userRepo  *fakeUserRepo
}

func newUploadTestEnv(t *testing.T, uploadCfg config.UploadConfig, rlCfg config.RateLimitConfig) *uploadTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	userRepo := &fakeUserRepo{byToken: map[string]*model.User{
		"tok-user":  {ID: 1, Username: "alice", Role: model.RoleUser, UploadToken: "tok-user"},
		"tok-admin": {ID: 2, Username: "root", Role: model.RoleAdmin, UploadToken: "tok-admin"},
	}}
	files := &fakeFileRepo{}
	blob := &fakeBlobStore{objects: make(map[string][]byte)}
	rateLimit := newFakeRateLimitRepo()

	chunkStore, err := chunk.NewStore(t.TempDir())
	require.NoError(t, err)

	ingestor := pipeline.NewIngestor(files, blob, nil, nil, uploadCfg)
	rateLimiter := service.NewRateLimitService(rateLimit, rlCfg)
	h := NewUploadHandler(ingestor, chunkStore, rateLimiter, rateLimit, uploadCfg)

	r := gin.New()
	upload := r.Group("/api/v1/upload")
	upload.Use(middleware.UploadAuthMiddleware(userRepo))
	upload.POST("", h.Upload)

	return &uploadTestEnv{router: r, files: files, blob: blob, rateLimit: rateLimit, userRepo: userRepo}
}

func defaultUploadCfg() config.UploadConfig {
	return config.UploadConfig{
		TempDir:            "",
		Route:              "/u",
		DisabledExtensions: []string{"exe"},
		RandomLength:       8,
		DatePattern:        "2006-01-02_15-04-05",
	}
}

type filePart struct {
	field    string
	filename string
	data     []byte
}

func buildMultipart(t *testing.T, fields map[string]string, parts ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func doUpload(env *uploadTestEnv, token string, body *bytes.Buffer, contentType string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Host = "example.com"
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func fileURLs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	resp := decodeJSON(t, rec)
	raw, ok := resp["files"].([]any)
	require.True(t, ok, "响应缺少 files 字段: %s", rec.Body.String())
	urls := make([]string, 0, len(raw))
	for _, v := range raw {
		urls = append(urls, v.(string))
	}
	return urls
}

func TestUploadRequiresToken(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(), config.RateLimitConfig{})

	body, ct := buildMultipart(t, nil, filePart{"file", "hello.txt", []byte("hi")})
	rec := doUpload(env, "", body, ct, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body, ct = buildMultipart(t, nil, filePart{"file", "hello.txt", []byte("hi")})
	rec = doUpload(env, "no-such-token", body, ct, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUploadWholeSingleFile(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(),
		config.RateLimitConfig{UserCooldownMs: 30000})

	body, ct := buildMultipart(t, nil, filePart{"file", "hello.txt", []byte("hello world")})
	rec := doUpload(env, "tok-user", body, ct, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	urls := fileURLs(t, rec)
	require.Len(t, urls, 1)
	assert.Regexp(t, regexp.MustCompile(`^http://example\.com/u/[a-zA-Z0-9]{8}\.txt$`), urls[0])

	require.Len(t, env.files.records, 1)
	record := env.files.records[0]
	assert.Equal(t, uint(1), record.UserID)
	assert.Equal(t, []byte("hello world"), env.blob.objects[record.Name])

	// 上传成功后普通用户的冷却被写入
	assert.Contains(t, env.rateLimit.cooldowns, uint(1))
}

func TestUploadAdminBatch(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(),
		config.RateLimitConfig{UserCooldownMs: 30000, AdminCooldownMs: 5000})

	body, ct := buildMultipart(t, map[string]string{"format": "name"},
		filePart{"file", "one.txt", []byte("first")},
		filePart{"file", "two.txt", []byte("second")},
	)
	rec := doUpload(env, "tok-admin", body, ct, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	urls := fileURLs(t, rec)
	require.Len(t, urls, 2)
	assert.Equal(t, "http://example.com/u/one.txt", urls[0])
	assert.Equal(t, "http://example.com/u/two.txt", urls[1])

	// 管理员按管理员时长写入冷却
	assert.Contains(t, env.rateLimit.cooldowns, uint(2))
}

func TestUploadRateLimited(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(),
		config.RateLimitConfig{UserCooldownMs: 30000})

	// 预置一个远未到期的冷却
	env.rateLimit.cooldowns[1] = 1<<62 - 1

	body, ct := buildMultipart(t, nil, filePart{"file", "hello.txt", []byte("hi")})
	rec := doUpload(env, "tok-user", body, ct, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	resp := decodeJSON(t, rec)
	remaining, ok := resp["remaining_ms"].(float64)
	require.True(t, ok)
	assert.Greater(t, remaining, float64(0))

	// 被拒绝的请求没有写入任何记录
	assert.Empty(t, env.files.records)
}

func TestUploadDisabledExtension(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(), config.RateLimitConfig{})

	body, ct := buildMultipart(t, nil, filePart{"file", "setup.exe", []byte("MZ")})
	rec := doUpload(env, "tok-user", body, ct, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.files.records)
}

func TestUploadWholeNoFiles(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(), config.RateLimitConfig{})

	body, ct := buildMultipart(t, map[string]string{"format": "uuid"})
	rec := doUpload(env, "tok-user", body, ct, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadSizeLimit(t *testing.T) {
	cfg := defaultUploadCfg()
	cfg.MaxFileSize = "1KB"
	env := newUploadTestEnv(t, cfg, config.RateLimitConfig{})

	body, ct := buildMultipart(t, nil, filePart{"file", "big.txt", make([]byte, 2048)})
	rec := doUpload(env, "tok-user", body, ct, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.files.records)
}

func TestUploadChunked(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(),
		config.RateLimitConfig{UserCooldownMs: 30000})

	full := make([]byte, 300)
	for i := range full {
		full[i] = byte(i % 251)
	}

	send := func(start, end int, last bool, fields map[string]string) *httptest.ResponseRecorder {
		body, ct := buildMultipart(t, fields,
			filePart{"file", "blob", full[start : end+1]})
		headers := map[string]string{
			"Content-Range": fmt.Sprintf("bytes %d-%d/%d", start, end, len(full)),
			"X-Upload-Id":   "sess-42",
			"X-File-Name":   "data.bin",
			"X-File-Type":   "application/octet-stream",
		}
		if last {
			headers["X-Last-Chunk"] = "true"
		}
		return doUpload(env, "tok-user", body, ct, headers)
	}

	// 前两个分片只落盘确认
	rec := send(0, 99, false, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decodeJSON(t, rec)["success"])
	assert.Empty(t, env.files.records)

	rec = send(100, 199, false, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// 最终分片触发重组与摄取
	rec = send(200, 299, true, map[string]string{"format": "uuid"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	urls := fileURLs(t, rec)
	require.Len(t, urls, 1)

	require.Len(t, env.files.records, 1)
	record := env.files.records[0]
	assert.Regexp(t, regexp.MustCompile(
		`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.bin$`), record.Name)
	assert.Equal(t, full, env.blob.objects[record.Name])

	// 合并完成后锁已释放，冷却已写入
	assert.Empty(t, env.rateLimit.locks)
	assert.Contains(t, env.rateLimit.cooldowns, uint(1))
}

func TestUploadChunkMissingUploadID(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(), config.RateLimitConfig{})

	body, ct := buildMultipart(t, nil, filePart{"file", "blob", make([]byte, 10)})
	rec := doUpload(env, "tok-user", body, ct, map[string]string{
		"Content-Range": "bytes 0-9/10",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadChunkMergeConflict(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(), config.RateLimitConfig{})

	// 模拟另一个最终分片请求正持有合并锁
	acquired, err := env.rateLimit.AcquireMergeLock(context.Background(), 1, "sess-42")
	require.NoError(t, err)
	require.True(t, acquired)

	body, ct := buildMultipart(t, nil, filePart{"file", "blob", make([]byte, 10)})
	rec := doUpload(env, "tok-user", body, ct, map[string]string{
		"Content-Range": "bytes 0-9/10",
		"X-Upload-Id":   "sess-42",
		"X-Last-Chunk":  "true",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, env.files.records)
}

func TestUploadInvalidOptions(t *testing.T) {
	env := newUploadTestEnv(t, defaultUploadCfg(), config.RateLimitConfig{})

	tests := []map[string]string{
		{"compression": "101"},
		{"compression": "abc"},
		{"max-views": "-1"},
		{"expires-at": "not-a-time"},
	}

	for _, fields := range tests {
		body, ct := buildMultipart(t, fields, filePart{"file", "hello.txt", []byte("hi")})
		rec := doUpload(env, "tok-user", body, ct, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "fields=%v", fields)
	}
	assert.Empty(t, env.files.records)
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		input   string
		start   int64
		end     int64
		total   int64
		wantErr bool
	}{
		{"bytes 0-99/300", 0, 99, 300, false},
		{"bytes 200-299/300", 200, 299, 300, false},
		{"bytes 0-0/1", 0, 0, 1, false},
		{" bytes 0-9/10 ", 0, 9, 10, false},
		{"", 0, 0, 0, true},
		{"0-99/300", 0, 0, 0, true},
		{"bytes 99-0/300", 0, 0, 0, true},
		{"bytes -1-99/300", 0, 0, 0, true},
		{"bytes 0-300/300", 0, 0, 0, true},
		{"bytes 0-99", 0, 0, 0, true},
		{"bytes a-b/c", 0, 0, 0, true},
	}

	for _, tt := range tests {
		start, end, total, err := parseContentRange(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input=%q", tt.input)
			continue
		}
		require.NoError(t, err, "input=%q", tt.input)
		assert.Equal(t, tt.start, start, "input=%q", tt.input)
		assert.Equal(t, tt.end, end, "input=%q", tt.input)
		assert.Equal(t, tt.total, total, "input=%q", tt.input)
	}
}
