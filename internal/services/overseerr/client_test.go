package overseerr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaumene/showsweep/internal/config"
	"github.com/amaumene/showsweep/internal/ratelimit"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.Config{
		OverseerrURL:    server.URL,
		OverseerrAPIKey: "test-key",
	}, ratelimit.New(time.Second, testLogger()), testLogger())
	require.NoError(t, err)
	return client
}

func TestGetRequestsPaginatesAndFilters(t *testing.T) {
	var pages []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/request", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		skip := r.URL.Query().Get("skip")
		pages = append(pages, skip)

		switch skip {
		case "", "0":
			fmt.Fprint(w, `{
				"pageInfo": {"pages": 2},
				"results": [
					{"id": 1, "createdAt": "2024-01-15T10:00:00.000Z", "status": 2,
					 "media": {"ratingKey": "101", "tvdbId": 79126, "mediaType": "tv"},
					 "requestedBy": {"displayName": "alice"}},
					{"id": 2, "createdAt": "2024-02-01T10:00:00.000Z", "status": 2,
					 "media": {"ratingKey": "555", "tvdbId": 0, "mediaType": "movie"},
					 "requestedBy": {"displayName": "bob"}}
				]
			}`)
		default:
			fmt.Fprint(w, `{
				"pageInfo": {"pages": 2},
				"results": [
					{"id": 3, "createdAt": "2024-03-01T10:00:00.000Z", "status": 1,
					 "media": {"ratingKey": "101", "tvdbId": 79126, "mediaType": "tv"},
					 "requestedBy": {"displayName": "carol"}}
				]
			}`)
		}
	})
	client := newTestClient(t, mux)

	records, err := client.GetRequests(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, records, 2, "movie request filtered out, both pages seen")

	assert.Equal(t, "alice", records[0].Requester)
	assert.Equal(t, "carol", records[1].Requester)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), records[0].RequestedAt.UTC())
}

func TestRequestListFetchedOncePerRun(t *testing.T) {
	fetches := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/request", func(w http.ResponseWriter, r *http.Request) {
		fetches++
		fmt.Fprint(w, `{"pageInfo": {"pages": 1}, "results": []}`)
	})
	client := newTestClient(t, mux)

	require.NoError(t, client.Prefetch(context.Background()))
	probeAndFirst := fetches

	for _, key := range []string{"1", "2", "3"} {
		_, err := client.GetRequests(context.Background(), key)
		require.NoError(t, err)
	}
	assert.Equal(t, probeAndFirst, fetches, "per-show lookups are in-memory filters")
}

func TestEndpointFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/request", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/request", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"pageInfo": {"pages": 1},
			"results": [
				{"id": 1, "createdAt": "2024-05-01T10:00:00.000Z", "status": 2,
				 "media": {"ratingKey": "101", "mediaType": "tv"},
				 "requestedBy": {"displayName": "dave"}}
			]
		}`)
	})
	client := newTestClient(t, mux)

	records, err := client.GetRequests(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "dave", records[0].Requester)
}

func TestNoWorkingEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	client := newTestClient(t, mux)

	_, err := client.GetRequests(context.Background(), "101")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no working overseerr API endpoint")
}

func TestGetRequestsNoMatches(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/request", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"pageInfo": {"pages": 1},
			"results": [
				{"id": 1, "createdAt": "2024-05-01T10:00:00.000Z", "status": 2,
				 "media": {"ratingKey": "999", "mediaType": "tv"},
				 "requestedBy": {"displayName": "erin"}}
			]
		}`)
	})
	client := newTestClient(t, mux)

	records, err := client.GetRequests(context.Background(), "101")
	require.NoError(t, err)
	assert.Empty(t, records)
}
