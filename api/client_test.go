package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flagclient/telemetry"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testMetadata() Metadata {
	return Metadata{
		SDKVersion:  "flagclient-go-test",
		MachineName: "test-machine",
		InstanceID:  "instance-1",
	}
}

func TestFetchSplitsRequestShape(t *testing.T) {
	var gotRequest *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequest = r.Clone(r.Context())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"splits": [{"name": "feat1", "status": "ACTIVE"}], "since": -1, "till": 100}`))
	}))
	defer server.Close()

	client := NewSplitAPI(server.URL, "secret-key", testMetadata(), testLogger())

	till := int64(200)
	changes, err := client.FetchSplits(context.Background(), -1, FetchOptions{
		CacheControlNoCache: true,
		Till:                &till,
	})
	require.NoError(t, err)

	require.NotNil(t, gotRequest)
	assert.Equal(t, "/splitChanges", gotRequest.URL.Path)
	assert.Equal(t, "-1", gotRequest.URL.Query().Get("since"))
	assert.Equal(t, "200", gotRequest.URL.Query().Get("till"))
	assert.Equal(t, "no-cache", gotRequest.Header.Get("Cache-Control"))
	assert.Equal(t, "Bearer secret-key", gotRequest.Header.Get("Authorization"))
	assert.Equal(t, "flagclient-go-test", gotRequest.Header.Get("SplitSDKVersion"))

	assert.Equal(t, int64(-1), changes.Since)
	assert.Equal(t, int64(100), changes.Till)
	require.Len(t, changes.Splits, 1)
	assert.Equal(t, "feat1", changes.Splits[0].Name)
}

func TestFetchSplitsOmitsOptionalBits(t *testing.T) {
	var gotRequest *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequest = r.Clone(r.Context())
		_, _ = w.Write([]byte(`{"splits": [], "since": 100, "till": 100}`))
	}))
	defer server.Close()

	client := NewSplitAPI(server.URL, "secret-key", testMetadata(), testLogger())
	_, err := client.FetchSplits(context.Background(), 100, FetchOptions{})
	require.NoError(t, err)

	require.NotNil(t, gotRequest)
	assert.Equal(t, "100", gotRequest.URL.Query().Get("since"))
	assert.False(t, gotRequest.URL.Query().Has("till"))
	assert.Empty(t, gotRequest.Header.Get("Cache-Control"))
}

func TestFetchSplitsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewSplitAPI(server.URL, "secret-key", testMetadata(), testLogger())
	_, err := client.FetchSplits(context.Background(), -1, FetchOptions{})
	require.Error(t, err)

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, http.StatusInternalServerError, typed.StatusCode)
}

func TestFetchSplitsMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewSplitAPI(server.URL, "secret-key", testMetadata(), testLogger())
	_, err := client.FetchSplits(context.Background(), -1, FetchOptions{})
	require.Error(t, err)

	var typed *Error
	require.ErrorAs(t, err, &typed)
}

func TestAuthenticateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/auth", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"pushEnabled": false, "token": ""}`))
	}))
	defer server.Close()

	auth := NewAuthAPI(server.URL, "secret-key", testMetadata(), testLogger())
	token, err := auth.Authenticate(context.Background())
	require.NoError(t, err)
	assert.False(t, token.PushEnabled)
}

func TestAuthenticate401BumpsRejections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	before := testutil.ToFloat64(telemetry.AuthRejections)

	auth := NewAuthAPI(server.URL, "bad-key", testMetadata(), testLogger())
	_, err := auth.Authenticate(context.Background())
	require.Error(t, err)

	var typed *Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, http.StatusUnauthorized, typed.StatusCode)
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.AuthRejections))
}

func TestAuthenticateOther4xxNoBump(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	before := testutil.ToFloat64(telemetry.AuthRejections)

	auth := NewAuthAPI(server.URL, "bad-key", testMetadata(), testLogger())
	_, err := auth.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, before, testutil.ToFloat64(telemetry.AuthRejections))
}
