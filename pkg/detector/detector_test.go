package detector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekoscraper/pkg/config"
	"nekoscraper/pkg/logger"
)

func testConfig(endpoint string) config.DetectorConfig {
	return config.DetectorConfig{
		Endpoint:            endpoint,
		ConfidenceThreshold: 0.5,
		TargetClassID:       16,
		Timeout:             5 * time.Second,
		MaxRetries:          1, // single attempt keeps tests fast
	}
}

// fakeInferenceServer decides detections by the uploaded file's content:
// "cat" yields a confident cat, "nocat" a person, "boom" a server error.
func fakeInferenceServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status": "ok"}`))
		case "/detect":
			file, _, err := r.FormFile("image")
			require.NoError(t, err)
			defer file.Close()
			content, err := io.ReadAll(file)
			require.NoError(t, err)

			var detections []Detection
			switch string(content) {
			case "cat":
				detections = []Detection{
					{ClassID: 16, ClassName: "cat", Confidence: 0.91, Box: [4]float64{10, 10, 200, 200}},
				}
			case "nocat":
				detections = []Detection{
					{ClassID: 0, ClassName: "person", Confidence: 0.88, Box: [4]float64{0, 0, 50, 50}},
				}
			case "boom":
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(detectResponse{Detections: detections})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func writeImage(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestHealth(t *testing.T) {
	server := fakeInferenceServer(t)
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	require.NoError(t, client.Health(context.Background()))
}

func TestHealthNotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "loading"}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector not ready")
}

func TestDetect(t *testing.T) {
	server := fakeInferenceServer(t)
	defer server.Close()

	path := filepath.Join(t.TempDir(), "image_1.jpg")
	writeImage(t, path, "cat")

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	detections, err := client.Detect(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, detections, 1)
	assert.Equal(t, 16, detections[0].ClassID)
	assert.Equal(t, "cat", detections[0].ClassName)
	assert.InDelta(t, 0.91, detections[0].Confidence, 0.001)
}

func TestDetectRetriesTransientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(detectResponse{Detections: []Detection{
			{ClassID: 16, ClassName: "cat", Confidence: 0.9},
		}})
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "image_1.jpg")
	writeImage(t, path, "cat")

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 2
	client := NewClient(cfg, logger.NewTestLogger())
	client.retryPause = time.Millisecond

	detections, err := client.Detect(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, 2, calls)
}

func TestDetectDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "image_1.jpg")
	writeImage(t, path, "cat")

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 3
	client := NewClient(cfg, logger.NewTestLogger())
	client.retryPause = time.Millisecond

	_, err := client.Detect(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, 1, calls)
}

func TestTargetMatch(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:1"), logger.NewTestLogger())

	detections := []Detection{
		{ClassID: 0, ClassName: "person", Confidence: 0.99},
		{ClassID: 16, ClassName: "cat", Confidence: 0.40}, // below threshold
		{ClassID: 16, ClassName: "cat", Confidence: 0.72},
		{ClassID: 16, ClassName: "cat", Confidence: 0.85},
	}

	best, found := client.TargetMatch(detections)
	require.True(t, found)
	assert.InDelta(t, 0.85, best.Confidence, 0.001)

	_, found = client.TargetMatch([]Detection{{ClassID: 15, Confidence: 0.9}})
	assert.False(t, found)
	_, found = client.TargetMatch(nil)
	assert.False(t, found)
}

func TestFilterRun(t *testing.T) {
	server := fakeInferenceServer(t)
	defer server.Close()

	root := t.TempDir()
	writeImage(t, filepath.Join(root, "cat_1", "image_1.jpg"), "cat")
	writeImage(t, filepath.Join(root, "cat_1", "image_2.jpg"), "nocat")
	writeImage(t, filepath.Join(root, "cat_2", "image_1.jpg"), "boom")

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	filter := NewFilter(client, logger.NewTestLogger())

	report, err := filter.Run(context.Background(), root, Options{Backup: false})
	require.NoError(t, err)

	stats := report.Statistics
	assert.Equal(t, 2, stats.TotalCats)
	assert.Equal(t, 3, stats.TotalImagesBefore)
	assert.Equal(t, 1, stats.ImagesWithCats)
	assert.Equal(t, 2, stats.ImagesWithoutCats)
	assert.Equal(t, 1, stats.DetectionErrors, "failed inference counts as no cat")
	assert.Equal(t, 2, stats.RemovedImages)
	assert.Equal(t, 1, stats.TotalImagesAfter)
	assert.Equal(t, 1, stats.CatsFullyRemoved)
	assert.InDelta(t, 0.91, stats.AverageConfidence, 0.001)

	assert.FileExists(t, filepath.Join(root, "cat_1", "image_1.jpg"))
	assert.NoFileExists(t, filepath.Join(root, "cat_1", "image_2.jpg"))
	assert.NoFileExists(t, filepath.Join(root, "cat_2", "image_1.jpg"), "unprocessable image is removed like any no-cat image")

	assert.Equal(t, 16, report.RemovalCriteria.TargetClassID)
	assert.InDelta(t, 0.5, report.RemovalCriteria.ConfidenceThreshold, 0.001)
}

func TestFilterRunAnalyzeOnly(t *testing.T) {
	server := fakeInferenceServer(t)
	defer server.Close()

	root := t.TempDir()
	writeImage(t, filepath.Join(root, "cat_1", "image_1.jpg"), "nocat")

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	filter := NewFilter(client, logger.NewTestLogger())

	report, err := filter.Run(context.Background(), root, Options{AnalyzeOnly: true})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Statistics.RemovedImages)
	assert.FileExists(t, filepath.Join(root, "cat_1", "image_1.jpg"))
}

func TestFilterRunAbortsWhenServiceDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	root := t.TempDir()
	writeImage(t, filepath.Join(root, "cat_1", "image_1.jpg"), "cat")

	client := NewClient(testConfig(server.URL), logger.NewTestLogger())
	filter := NewFilter(client, logger.NewTestLogger())

	_, err := filter.Run(context.Background(), root, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference service unavailable")
	assert.FileExists(t, filepath.Join(root, "cat_1", "image_1.jpg"), "nothing is removed without a healthy service")
}
