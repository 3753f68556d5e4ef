package jobqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/"+ModelLoraTraining, r.URL.Path)
		assert.Equal(t, "Key fal_test", r.Header.Get("Authorization"))

		var payload struct {
			Input TrainingInput `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "https://storage.example/images.zip", payload.Input.ImagesDataURL)
		assert.Equal(t, "ohwx", payload.Input.TriggerWord)

		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"request_id": "req-1"}`))
	}))
	defer srv.Close()

	client := NewClient("fal_test", srv.URL, srv.URL)
	requestID, err := client.Submit(context.Background(), ModelLoraTraining, TrainingInput{
		ImagesDataURL: "https://storage.example/images.zip",
		TriggerWord:   "ohwx",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", requestID)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name      string
		withLogs  bool
		wantQuery string
		response  string
		wantLogs  int
	}{
		{
			name:      "without logs",
			withLogs:  false,
			wantQuery: "",
			response:  `{"status": "IN_PROGRESS"}`,
		},
		{
			name:      "with logs",
			withLogs:  true,
			wantQuery: "logs=1",
			response:  `{"status": "COMPLETED", "logs": [{"message": "done", "timestamp": "2025-01-01T00:00:00Z"}]}`,
			wantLogs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/"+ModelLoraTraining+"/requests/req-1/status", r.URL.Path)
				assert.Equal(t, tt.wantQuery, r.URL.RawQuery)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			client := NewClient("fal_test", srv.URL, srv.URL)
			status, err := client.Status(context.Background(), ModelLoraTraining, "req-1", tt.withLogs)
			require.NoError(t, err)
			assert.NotEmpty(t, status.Status)
			assert.Len(t, status.Logs, tt.wantLogs)
		})
	}
}

func TestResult(t *testing.T) {
	raw := `{"diffusers_lora_file": {"url": "https://storage.example/lora.safetensors"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+ModelLoraTraining+"/requests/req-1", r.URL.Path)
		_, _ = w.Write([]byte(raw))
	}))
	defer srv.Close()

	client := NewClient("fal_test", srv.URL, srv.URL)
	result, err := client.Result(context.Background(), ModelLoraTraining, "req-1")
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(result))
}

func TestRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/"+ModelImageGeneration, r.URL.Path)

		var payload struct {
			Input GenerateInput `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "a cat", payload.Input.Prompt)
		assert.True(t, payload.Input.EnableSafetyChecker)
		assert.Equal(t, 50, payload.Input.NumInferenceSteps)

		_, _ = w.Write([]byte(`{"images": [{"url": "https://storage.example/out.png"}]}`))
	}))
	defer srv.Close()

	client := NewClient("fal_test", srv.URL, srv.URL)
	result, err := client.Run(context.Background(), ModelImageGeneration, GenerateInput{
		Prompt:              "a cat",
		EnableSafetyChecker: true,
		NumInferenceSteps:   50,
	})
	require.NoError(t, err)
	require.Len(t, result.Images, 1)
	assert.Equal(t, "https://storage.example/out.png", result.Images[0].URL)
}

func TestClient_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient("fal_test", srv.URL, srv.URL)
	_, err := client.Submit(context.Background(), ModelLoraTraining, TrainingInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}
