package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adtechlab/newswire/internal/pipeline"
)

func sampleAlert() pipeline.Alert {
	at := time.Date(2024, 6, 1, 11, 30, 0, 0, time.UTC)
	return pipeline.Alert{
		WindowStart:  at.Add(-time.Hour),
		WindowEnd:    at.Add(time.Hour),
		FailureCount: 1,
		Failures: []pipeline.AlertFailure{
			{RunID: "run-1", Stage: pipeline.StageFetch, At: at, Excerpt: "boom"},
		},
	}
}

func TestWebhookNotifierPostsAlert(t *testing.T) {
	t.Parallel()

	var got pipeline.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	require.Equal(t, 1, got.FailureCount)
	require.Equal(t, "run-1", got.Failures[0].RunID)
}

func TestWebhookNotifierNon2xxIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(srv.URL, time.Second, zap.NewNop())
	require.NoError(t, err)
	err = n.Notify(context.Background(), sampleAlert())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestWebhookNotifierRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewWebhookNotifier("", time.Second, zap.NewNop())
	require.Error(t, err)
}

func TestLogNotifierNeverFails(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewLogNotifier(zap.NewNop()).Notify(context.Background(), sampleAlert()))
	require.NoError(t, NoOpNotifier{}.Notify(context.Background(), sampleAlert()))
}
