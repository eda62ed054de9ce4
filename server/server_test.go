package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rogermt/forgesyte-sub004/blob"
	"github.com/rogermt/forgesyte-sub004/config"
	"github.com/rogermt/forgesyte-sub004/health"
	fstest "github.com/rogermt/forgesyte-sub004/internal/testing"
	"github.com/rogermt/forgesyte-sub004/job"
	"github.com/rogermt/forgesyte-sub004/plugin"
	"github.com/rogermt/forgesyte-sub004/progress"
)

type fakePlugin struct{}

func (fakePlugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		ID:          "analyzer",
		Version:     "1.0.0",
		Description: "Test analyzer",
		Tools: []plugin.ToolSpec{
			{Name: "extract_text", InputKinds: []plugin.InputKind{plugin.KindImage}},
			{Name: "detect_objects", InputKinds: []plugin.InputKind{plugin.KindImage}},
			{Name: "video_track", InputKinds: []plugin.InputKind{plugin.KindVideo}},
		},
	}
}

func (fakePlugin) Load(ctx context.Context) error   { return nil }
func (fakePlugin) Unload(ctx context.Context) error { return nil }
func (fakePlugin) RunTool(ctx context.Context, tool string, args plugin.Args) (any, error) {
	return map[string]any{"tool": tool}, nil
}

type fixture struct {
	server    *Server
	ts        *httptest.Server
	db        *sql.DB
	jobs      *job.Store
	blobs     *blob.Store
	bus       *progress.Bus
	heartbeat *health.Heartbeat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zap.NewNop().Sugar()
	cfg := &config.Config{
		DataRoot:         t.TempDir(),
		HTTPAddr:         ":0",
		PollIntervalMS:   500,
		HeartbeatStaleMS: 5000,
		MaxUploadBytes:   8 << 20,
	}

	conn := fstest.CreateTestDB(t)
	jobs := job.NewStore(conn)
	blobs, err := blob.NewStore(cfg.DataRoot)
	require.NoError(t, err)

	registry := plugin.NewRegistry(log)
	require.Equal(t, 1, registry.LoadAll(context.Background(), []plugin.Plugin{fakePlugin{}}))

	bus := progress.NewBus(log)
	heartbeat := health.NewHeartbeat()

	s := New(cfg, jobs, registry, blobs, bus, heartbeat, log)
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)

	return &fixture{server: s, ts: ts, db: conn, jobs: jobs, blobs: blobs, bus: bus, heartbeat: heartbeat}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func mp4Bytes() []byte {
	// Minimal ISO BMFF header: box size then "ftypisom"
	return append([]byte{0, 0, 0, 32}, []byte("ftypisom................")...)
}

func multipartBody(t *testing.T, field, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (f *fixture) post(t *testing.T, path string, content []byte, filename string) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, "file", filename, content)
	resp, err := http.Post(f.ts.URL+path, contentType, body)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestListPlugins(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/v1/plugins")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plugins []map[string]string
	decodeJSON(t, resp, &plugins)
	require.Len(t, plugins, 1)
	assert.Equal(t, "analyzer", plugins[0]["id"])
	assert.Equal(t, "1.0.0", plugins[0]["version"])
}

func TestPluginManifest(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/v1/plugins/analyzer/manifest")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var manifest struct {
		ID    string `json:"id"`
		Tools []struct {
			Name       string   `json:"name"`
			InputKinds []string `json:"input_kinds"`
		} `json:"tools"`
	}
	decodeJSON(t, resp, &manifest)
	assert.Equal(t, "analyzer", manifest.ID)
	require.Len(t, manifest.Tools, 3)
	assert.Equal(t, "extract_text", manifest.Tools[0].Name)
	assert.Equal(t, []string{"image"}, manifest.Tools[0].InputKinds)
}

func TestPluginManifestUnknown(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/v1/plugins/ghost/manifest")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImageSubmitHappyPath(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/image/submit?plugin_id=analyzer&tool=extract_text", pngBytes(t), "photo.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	jobID := body["job_id"]
	require.NotEmpty(t, jobID)

	j, err := f.jobs.Get(jobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, j.Status)
	assert.Equal(t, job.TypeSingle, j.Type)
	assert.Equal(t, jobID+".png", j.InputPath)

	absPath, err := f.blobs.Open(j.InputPath)
	require.NoError(t, err)
	_, err = os.Stat(absPath)
	require.NoError(t, err)
}

func TestImageSubmitMultiToolOrder(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/image/submit?plugin_id=analyzer&tool=detect_objects&tool=extract_text", pngBytes(t), "photo.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)

	j, err := f.jobs.Get(body["job_id"])
	require.NoError(t, err)
	assert.Equal(t, job.TypeMulti, j.Type)
	assert.Equal(t, []string{"detect_objects", "extract_text"}, j.ToolList)
}

func TestImageSubmitUnknownToolLeavesNoTrace(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/image/submit?plugin_id=analyzer&tool=definitely_not_here", pngBytes(t), "photo.png")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Contains(t, body["detail"], "extract_text")

	count, err := f.jobs.CountByStatus(job.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "no job row created")
}

func TestImageSubmitUnknownPluginIs404(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/image/submit?plugin_id=ghost&tool=extract_text", pngBytes(t), "photo.png")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImageSubmitMissingPluginID(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/image/submit?tool=extract_text", pngBytes(t), "photo.png")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImageSubmitEmptyFile(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/image/submit?plugin_id=analyzer&tool=extract_text", nil, "photo.png")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVideoSubmitRejectsNonMP4(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/video/submit?plugin_id=analyzer&tool=video_track", []byte("NOT_AN_MP4"), "clip.mp4")
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// No blob written
	entries, err := os.ReadDir(f.blobs.BaseDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVideoSubmitHappyPath(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/video/submit?plugin_id=analyzer&tool=video_track", mp4Bytes(), "clip.mp4")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)

	j, err := f.jobs.Get(body["job_id"])
	require.NoError(t, err)
	assert.Equal(t, j.ID+".mp4", j.InputPath)
}

func TestVideoSubmitKindMismatch(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/v1/video/submit?plugin_id=analyzer&tool=extract_text", mp4Bytes(), "clip.mp4")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImageSubmitUnsupportedImageType(t *testing.T) {
	f := newFixture(t)

	// BMP sniffs as image/bmp, which is outside the stored-format allowlist
	bmp := append([]byte("BM"), make([]byte, 32)...)
	resp := f.post(t, "/v1/image/submit?plugin_id=analyzer&tool=extract_text", bmp, "photo.bmp")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Contains(t, body["detail"], "unsupported image type")
}

func TestSubmitIs503WhenDatabaseDown(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Close())

	resp := f.post(t, "/v1/image/submit?plugin_id=analyzer&tool=extract_text", pngBytes(t), "photo.png")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetJobIs503WhenResultsUnreadable(t *testing.T) {
	f := newFixture(t)

	j := job.NewSingle("analyzer", "extract_text", "x.png")
	require.NoError(t, f.jobs.Insert(j))
	_, err := f.jobs.ClaimOldestPending()
	require.NoError(t, err)
	// Finalize against an output blob that was never written
	require.NoError(t, f.jobs.FinalizeSuccess(j.ID, "output/"+j.ID+".json"))

	resp, err := http.Get(f.ts.URL + "/v1/jobs/" + j.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestGetJobUnknown(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/v1/jobs/no-such-job")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetJobPendingHasNoResults(t *testing.T) {
	f := newFixture(t)

	j := job.NewSingle("analyzer", "extract_text", "x.png")
	require.NoError(t, f.jobs.Insert(j))

	resp, err := http.Get(f.ts.URL + "/v1/jobs/" + j.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "pending", body["status"])
	assert.NotContains(t, body, "results")
	assert.NotContains(t, body, "error_message")
}

func TestGetJobCompletedInlinesResults(t *testing.T) {
	f := newFixture(t)

	j := job.NewSingle("analyzer", "extract_text", "x.png")
	require.NoError(t, f.jobs.Insert(j))
	_, err := f.jobs.ClaimOldestPending()
	require.NoError(t, err)

	outputKey := "output/" + j.ID + ".json"
	_, err = f.blobs.Put(strings.NewReader(`{"results":{"text":"hello"}}`), outputKey)
	require.NoError(t, err)
	require.NoError(t, f.jobs.FinalizeSuccess(j.ID, outputKey))

	resp, err := http.Get(f.ts.URL + "/v1/jobs/" + j.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status  string         `json:"status"`
		Results map[string]any `json:"results"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "completed", body.Status)
	assert.Equal(t, "hello", body.Results["text"])
}

func TestGetJobFailedHasErrorMessage(t *testing.T) {
	f := newFixture(t)

	j := job.NewSingle("analyzer", "extract_text", "x.png")
	require.NoError(t, f.jobs.Insert(j))
	_, err := f.jobs.ClaimOldestPending()
	require.NoError(t, err)
	require.NoError(t, f.jobs.FinalizeFailure(j.ID, "tool exploded"))

	resp, err := http.Get(f.ts.URL + "/v1/jobs/" + j.ID)
	require.NoError(t, err)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "tool exploded", body["error_message"])
	assert.NotContains(t, body, "results")
}

func TestWorkerHealth(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/v1/worker/health")
	require.NoError(t, err)
	var body struct {
		Alive         bool       `json:"alive"`
		LastHeartbeat *time.Time `json:"last_heartbeat"`
	}
	decodeJSON(t, resp, &body)
	assert.False(t, body.Alive)
	assert.Nil(t, body.LastHeartbeat)

	f.heartbeat.Beat()

	resp, err = http.Get(f.ts.URL + "/v1/worker/health")
	require.NoError(t, err)
	decodeJSON(t, resp, &body)
	assert.True(t, body.Alive)
	require.NotNil(t, body.LastHeartbeat)
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestJobWebSocketTerminalSnapshotCloses(t *testing.T) {
	f := newFixture(t)

	j := job.NewSingle("analyzer", "extract_text", "x.png")
	require.NoError(t, f.jobs.Insert(j))
	_, err := f.jobs.ClaimOldestPending()
	require.NoError(t, err)
	require.NoError(t, f.jobs.FinalizeFailure(j.ID, "tool exploded"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.ts.URL, "/v1/ws/jobs/"+j.ID), nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg struct {
		Type        string     `json:"type"`
		Status      string     `json:"status"`
		Error       *string    `json:"error"`
		CompletedAt *time.Time `json:"completed_at"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "failed", msg.Status)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "tool exploded", *msg.Error)
	assert.NotNil(t, msg.CompletedAt)

	// Server closes after the terminal snapshot
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestJobWebSocketStreamsEvents(t *testing.T) {
	f := newFixture(t)

	j := job.NewSingle("analyzer", "extract_text", "x.png")
	require.NoError(t, f.jobs.Insert(j))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.ts.URL, "/v1/ws/jobs/"+j.ID), nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot struct {
		Status string `json:"status"`
	}
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "pending", snapshot.Status)

	outputKey := "output/" + j.ID + ".json"
	f.bus.Publish(progress.Event{
		JobID:      j.ID,
		Status:     "completed",
		OutputPath: &outputKey,
		Timestamp:  time.Now().UTC(),
	})

	var terminal struct {
		Status      string     `json:"status"`
		CompletedAt *time.Time `json:"completed_at"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&terminal))
	assert.Equal(t, "completed", terminal.Status)
	assert.NotNil(t, terminal.CompletedAt)
}

func TestJobWebSocketUnknownJob(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/v1/ws/jobs/no-such-job")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
