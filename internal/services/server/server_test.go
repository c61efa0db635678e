package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/temirov/codeprompt/internal/pipeline"
	"github.com/temirov/codeprompt/internal/services/server"
	"github.com/temirov/codeprompt/internal/types"
)

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md":   "hello\n",
		"src/main.go": "package main\n",
		"src/skip.go": "package skip\n",
	}
	for relativePath, content := range files {
		absolutePath := filepath.Join(root, filepath.FromSlash(relativePath))
		if err := os.MkdirAll(filepath.Dir(absolutePath), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(absolutePath, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", relativePath, err)
		}
	}
	return root
}

func postPrompt(t *testing.T, handler http.Handler, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, "/prompt", bytes.NewReader(body))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestServerRunExposesCapabilities(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promptServer := server.NewServer(server.Config{Address: "127.0.0.1:0"})
	addressCh := make(chan string, 1)
	errorCh := make(chan error, 1)
	go func() {
		errorCh <- promptServer.Run(ctx, func(address string) {
			addressCh <- address
		})
	}()

	select {
	case address := <-addressCh:
		client := http.Client{Timeout: 2 * time.Second}
		response, err := client.Get("http://" + address + "/capabilities")
		if err != nil {
			t.Fatalf("perform request: %v", err)
		}
		defer response.Body.Close()
		if response.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status: %d", response.StatusCode)
		}
		var payload struct {
			Capabilities []server.Capability `json:"capabilities"`
		}
		if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(payload.Capabilities) != 2 || payload.Capabilities[0].Name != "prompt" {
			t.Fatalf("unexpected capabilities: %+v", payload.Capabilities)
		}
	case err := <-errorCh:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server")
	}

	cancel()
	select {
	case err := <-errorCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("server returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestPromptEndpointRendersReport(t *testing.T) {
	root := writeProject(t)
	promptServer := server.NewServer(server.Config{
		Defaults: pipeline.Options{CodeBlock: true, UseGitignore: true, UseIgnoreFile: true},
	})

	recorder := postPrompt(t, promptServer.Handler(), server.PromptRequest{
		Path:    root,
		Exclude: []string{"skip.go"},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", recorder.Code, recorder.Body.String())
	}
	var report types.Report
	if err := json.Unmarshal(recorder.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	expectedFiles := []string{"README.md", "src/main.go"}
	if len(report.Files) != len(expectedFiles) {
		t.Fatalf("expected files %v, got %v", expectedFiles, report.Files)
	}
	for index, expected := range expectedFiles {
		if report.Files[index] != expected {
			t.Fatalf("expected files %v, got %v", expectedFiles, report.Files)
		}
	}
	if report.DirectoryName != filepath.Base(root) {
		t.Fatalf("unexpected directory name %q", report.DirectoryName)
	}
	if !bytes.Contains([]byte(report.Prompt), []byte("```go\npackage main\n\n```")) {
		t.Fatalf("prompt missing fenced file content:\n%s", report.Prompt)
	}
}

func TestPromptEndpointRequestOverridesDefaults(t *testing.T) {
	var captured pipeline.Options
	lineNumbers := true
	workingDiff := true
	promptServer := server.NewServer(server.Config{
		Defaults: pipeline.Options{
			CodeBlock: true,
			Patterns:  types.PatternSet{IncludePriority: true},
			Variables: map[string]string{"task": "default", "team": "core"},
		},
		Run: func(_ context.Context, options pipeline.Options) (pipeline.Result, error) {
			captured = options
			return pipeline.Result{Rendered: "ok"}, nil
		},
	})

	recorder := postPrompt(t, promptServer.Handler(), server.PromptRequest{
		Path:        "/tmp/project",
		Include:     []string{"*.go"},
		LineNumbers: &lineNumbers,
		WorkingDiff: &workingDiff,
		Encoding:    "o200k",
		Variables:   map[string]string{"task": "review"},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	if captured.Root != "/tmp/project" || !captured.LineNumbers || !captured.CodeBlock || !captured.WorkingDiff {
		t.Fatalf("unexpected options: %+v", captured)
	}
	if captured.Encoding != "o200k" || !captured.Patterns.IncludePriority || captured.Patterns.Include[0] != "*.go" {
		t.Fatalf("unexpected pattern or encoding options: %+v", captured)
	}
	if captured.Variables["task"] != "review" || captured.Variables["team"] != "core" {
		t.Fatalf("unexpected variables: %v", captured.Variables)
	}
}

func TestPromptEndpointErrors(t *testing.T) {
	testCases := []struct {
		name           string
		method         string
		body           string
		runErr         error
		expectedStatus int
	}{
		{name: "wrong method", method: http.MethodGet, expectedStatus: http.StatusMethodNotAllowed},
		{name: "malformed body", method: http.MethodPost, body: "{", expectedStatus: http.StatusBadRequest},
		{name: "missing path", method: http.MethodPost, body: `{}`, expectedStatus: http.StatusBadRequest},
		{
			name:           "configuration error",
			method:         http.MethodPost,
			body:           `{"path":"."}`,
			runErr:         &pipeline.ConfigError{Field: pipeline.FieldPattern, Value: "[", Err: errors.New("bad pattern")},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "internal failure",
			method:         http.MethodPost,
			body:           `{"path":"."}`,
			runErr:         errors.New("disk on fire"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			promptServer := server.NewServer(server.Config{
				Run: func(context.Context, pipeline.Options) (pipeline.Result, error) {
					return pipeline.Result{}, testCase.runErr
				},
			})
			request := httptest.NewRequest(testCase.method, "/prompt", bytes.NewBufferString(testCase.body))
			recorder := httptest.NewRecorder()
			promptServer.Handler().ServeHTTP(recorder, request)
			if recorder.Code != testCase.expectedStatus {
				t.Fatalf("expected status %d, got %d (%s)", testCase.expectedStatus, recorder.Code, recorder.Body.String())
			}
		})
	}
}
