package discover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nekoscraper/pkg/logger"
)

func testSite(robots string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		if robots == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(robots))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/foster/cat/">Cats for adoption</a>
			<a href="/secret/cats/">Hidden cats</a>
			<a href="/company/">About us</a>
		</body></html>`))
	})
	mux.HandleFunc("/foster/cat/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/foster/100001/">Tama</a>
			<a href="/foster/100002/">Kuro</a>
			<a href="/foster/cat/?p=2">next page</a>
		</body></html>`))
	})
	mux.HandleFunc("/secret/cats/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/foster/999999/">hidden</a></body></html>`))
	})
	mux.HandleFunc("/company/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>corporate</p></body></html>`))
	})
	return httptest.NewServer(mux)
}

func testOptions(baseURL string) Options {
	return Options{
		BaseURL:   baseURL,
		UserAgent: "discover-test",
		MaxDepth:  2,
		MaxPages:  20,
		Delay:     time.Millisecond,
		Logger:    logger.NewTestLogger(),
	}
}

func TestNewDefaults(t *testing.T) {
	e, err := New(Options{BaseURL: "https://www.example.com"})
	require.NoError(t, err)
	assert.Equal(t, 2, e.opts.MaxDepth)
	assert.Equal(t, 50, e.opts.MaxPages)
	assert.Equal(t, time.Second, e.opts.Delay)

	_, err = New(Options{})
	require.Error(t, err)
}

func TestRunFindsListingCandidates(t *testing.T) {
	server := testSite("")
	defer server.Close()

	e, err := New(testOptions(server.URL))
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, result.Candidates)
	best := result.Candidates[0]
	assert.Contains(t, best.URL, "/foster/cat/")
	assert.Equal(t, 2, best.EntityProfiles)
	assert.True(t, best.HasPagination)

	// The unrestricted crawl also reaches the /secret/ section
	assert.Equal(t, []string{
		server.URL + "/foster/100001/",
		server.URL + "/foster/100002/",
		server.URL + "/foster/999999/",
	}, result.EntityURLs)
}

func TestRunHonorsRobots(t *testing.T) {
	server := testSite("User-agent: *\nDisallow: /secret/\n")
	defer server.Close()

	e, err := New(testOptions(server.URL))
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.RobotsDisallowed, 1)
	assert.NotContains(t, result.EntityURLs, server.URL+"/foster/999999/")

	for _, c := range result.Candidates {
		assert.NotContains(t, c.URL, "/secret/")
	}
}

func TestRunRespectsMaxPages(t *testing.T) {
	server := testSite("")
	defer server.Close()

	opts := testOptions(server.URL)
	opts.MaxPages = 1

	e, err := New(opts)
	require.NoError(t, err)

	result, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExploredPages)
}

func TestResultWrite(t *testing.T) {
	result := &Result{
		BaseURL:       "https://www.example.com",
		ExploredPages: 4,
		Candidates: []Candidate{
			{URL: "https://www.example.com/foster/cat/", EntityProfiles: 12, HasPagination: true},
		},
	}

	path := filepath.Join(t.TempDir(), "discovery.json")
	require.NoError(t, result.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entity_profiles": 12`)
	assert.Contains(t, string(data), `"explored_pages": 4`)
}
