package nekojirushi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "nekoscraper/pkg/errors"
	"nekoscraper/pkg/logger"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	return NewClient(Options{
		BaseURL:    server.URL,
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		Logger:     logger.NewTestLogger(),
	})
}

func TestGetPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	body, err := client.GetPage(context.Background(), server.URL+"/page")
	require.NoError(t, err)
	assert.Contains(t, string(body), "hello")
}

func TestGetPageRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	body, err := client.GetPage(context.Background(), server.URL+"/flaky")
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetPageDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.GetPage(context.Background(), server.URL+"/missing")
	require.Error(t, err)

	var typed *errs.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errs.ErrorTypeNotFound, typed.Type)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetImageReturnsContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	}))
	defer server.Close()

	client := newTestClient(t, server)
	data, contentType, err := client.GetImage(context.Background(), server.URL+"/img")
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Len(t, data, 4)
}

func TestFosterList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/foster/ajax/ajax_getFosterList.php", r.URL.Path)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "0", r.PostForm.Get("spMode"))
		assert.Contains(t, r.PostForm.Get("search_cond"), `"p":"2"`)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"foster_list": [
				{"cat_id": 111, "cat_name": "Kuro", "catch_copy": "shy boy", "url": "/foster/111/", "image_1": "/img/foster/111.jpg"}
			],
			"page": {"now": 2, "all_page": 10, "rows": 200}
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	resp, err := client.FosterList(context.Background(), "/foster/ajax/ajax_getFosterList.php", 2)
	require.NoError(t, err)

	require.Len(t, resp.FosterList, 1)
	assert.Equal(t, "111", resp.FosterList[0].CatID.String())
	assert.Equal(t, "Kuro", resp.FosterList[0].CatName)
	assert.Equal(t, 10, resp.Page.AllPage.Int())
}

func TestFosterListMalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance page</html>"))
	}))
	defer server.Close()

	client := newTestClient(t, server)
	_, err := client.FosterList(context.Background(), "/foster/ajax/ajax_getFosterList.php", 1)
	require.Error(t, err)

	var typed *errs.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errs.ErrorTypeParsing, typed.Type)
}

func TestResolveURL(t *testing.T) {
	client := NewClient(Options{
		BaseURL: "https://www.example.com",
		Logger:  logger.NewTestLogger(),
	})

	tests := []struct {
		ref  string
		want string
	}{
		{"/foster/123/", "https://www.example.com/foster/123/"},
		{"https://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, client.ResolveURL(tt.ref))
	}
}
