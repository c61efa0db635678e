// Package server exposes prompt generation over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/codeprompt/internal/output"
	"github.com/temirov/codeprompt/internal/pipeline"
	"github.com/temirov/codeprompt/internal/types"
)

const (
	// DefaultAddress keeps the server on the loopback interface.
	DefaultAddress          = "127.0.0.1:7878"
	defaultShutdownDuration = 5 * time.Second
	maxRequestBytes         = 1 << 20
	headerContentType       = "Content-Type"
	mimeTypeJSON            = "application/json"
	capabilitiesPath        = "/capabilities"
	promptPath              = "/prompt"
	rootPath                = "/"
	errorFieldName          = "error"
	errorMissingPath        = "path is required"
)

// Capability describes an endpoint exposed by the server.
type Capability struct {
	Name        string `json:"name"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var capabilities = []Capability{
	{Name: "prompt", Method: http.MethodPost, Path: promptPath, Description: "render a prompt for a directory and return the report"},
	{Name: "capabilities", Method: http.MethodGet, Path: capabilitiesPath, Description: "list the available endpoints"},
}

// PromptRequest is the JSON body accepted by POST /prompt. Unset booleans fall back
// to the server defaults.
type PromptRequest struct {
	Path            string            `json:"path"`
	Include         []string          `json:"include,omitempty"`
	Exclude         []string          `json:"exclude,omitempty"`
	IncludePriority *bool             `json:"include_priority,omitempty"`
	LineNumbers     *bool             `json:"line_numbers,omitempty"`
	CodeBlock       *bool             `json:"code_block,omitempty"`
	AbsolutePaths   *bool             `json:"absolute_paths,omitempty"`
	UseGitignore    *bool             `json:"use_gitignore,omitempty"`
	UseIgnoreFile   *bool             `json:"use_ignore,omitempty"`
	IncludeGit      *bool             `json:"include_git,omitempty"`
	Tokens          *bool             `json:"tokens,omitempty"`
	FileTokens      *bool             `json:"file_tokens,omitempty"`
	Encoding        string            `json:"encoding,omitempty"`
	Model           string            `json:"model,omitempty"`
	Template        string            `json:"template,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"`
	WorkingDiff     *bool             `json:"git_diff,omitempty"`
	DiffBranch      string            `json:"git_diff_branch,omitempty"`
	LogBranch       string            `json:"git_log_branch,omitempty"`
}

// RunFunc executes one pipeline run.
type RunFunc func(ctx context.Context, options pipeline.Options) (pipeline.Result, error)

// Config defines runtime options for the server.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	// Defaults seed every request before the request fields are applied.
	Defaults pipeline.Options
	Run      RunFunc
	Logger   *zap.Logger
}

// Server renders prompts on request.
type Server struct {
	config Config
}

// NewServer creates a new Server with defaults applied.
func NewServer(config Config) Server {
	normalized := config
	if normalized.Address == "" {
		normalized.Address = DefaultAddress
	}
	if normalized.ShutdownTimeout <= 0 {
		normalized.ShutdownTimeout = defaultShutdownDuration
	}
	if normalized.Run == nil {
		normalized.Run = pipeline.Run
	}
	if normalized.Logger == nil {
		normalized.Logger = zap.NewNop()
	}
	return Server{config: normalized}
}

// Handler returns the HTTP routes of the server.
func (server Server) Handler() http.Handler {
	router := http.NewServeMux()
	router.HandleFunc(capabilitiesPath, server.handleCapabilities)
	router.HandleFunc(promptPath, server.handlePrompt)
	router.HandleFunc(rootPath, server.handleRoot)
	return router
}

// Run starts the server and blocks until ctx is canceled.
// The notify callback receives the bound address once the listener is active.
func (server Server) Run(ctx context.Context, notify func(string)) error {
	listener, listenErr := net.Listen("tcp", server.config.Address)
	if listenErr != nil {
		return fmt.Errorf("listen on %s: %w", server.config.Address, listenErr)
	}
	actualAddress := listener.Addr().String()

	httpServer := &http.Server{Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		serveErr := httpServer.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve prompts: %w", serveErr)
		}
		return nil
	})

	server.config.Logger.Info("prompt server listening", zap.String("address", actualAddress))
	if notify != nil {
		notify(actualAddress)
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.config.ShutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil && !errors.Is(shutdownErr, context.Canceled) && !errors.Is(shutdownErr, http.ErrServerClosed) {
			return fmt.Errorf("shutdown prompt server: %w", shutdownErr)
		}
		return nil
	})

	return group.Wait()
}

func (server Server) handleCapabilities(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payload := struct {
		Capabilities []Capability `json:"capabilities"`
	}{Capabilities: capabilities}
	server.writeJSON(writer, http.StatusOK, payload)
}

func (server Server) handleRoot(writer http.ResponseWriter, request *http.Request) {
	if request.URL.Path != rootPath {
		writer.WriteHeader(http.StatusNotFound)
		return
	}
	if request.Method != http.MethodGet {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writer.WriteHeader(http.StatusOK)
}

func (server Server) handlePrompt(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, readErr := io.ReadAll(io.LimitReader(request.Body, maxRequestBytes))
	if readErr != nil {
		server.writeError(writer, http.StatusBadRequest, fmt.Errorf("read request body: %w", readErr))
		return
	}
	var promptRequest PromptRequest
	if decodeErr := json.Unmarshal(body, &promptRequest); decodeErr != nil {
		server.writeError(writer, http.StatusBadRequest, fmt.Errorf("decode request: %w", decodeErr))
		return
	}
	if strings.TrimSpace(promptRequest.Path) == "" {
		server.writeError(writer, http.StatusBadRequest, errors.New(errorMissingPath))
		return
	}

	options := server.optionsFor(promptRequest)
	result, runErr := server.config.Run(request.Context(), options)
	if runErr != nil {
		server.config.Logger.Warn("prompt request failed", zap.String("path", promptRequest.Path), zap.Error(runErr))
		server.writeError(writer, statusCodeFromError(runErr), runErr)
		return
	}
	server.writeJSON(writer, http.StatusOK, output.BuildReport(result))
}

func (server Server) optionsFor(promptRequest PromptRequest) pipeline.Options {
	options := server.config.Defaults
	options.Root = promptRequest.Path
	options.Logger = server.config.Logger
	if len(promptRequest.Include) > 0 || len(promptRequest.Exclude) > 0 {
		options.Patterns = types.PatternSet{
			Include:         promptRequest.Include,
			Exclude:         promptRequest.Exclude,
			IncludePriority: options.Patterns.IncludePriority,
		}
	}
	applyBool(&options.Patterns.IncludePriority, promptRequest.IncludePriority)
	applyBool(&options.LineNumbers, promptRequest.LineNumbers)
	applyBool(&options.CodeBlock, promptRequest.CodeBlock)
	applyBool(&options.AbsolutePaths, promptRequest.AbsolutePaths)
	applyBool(&options.UseGitignore, promptRequest.UseGitignore)
	applyBool(&options.UseIgnoreFile, promptRequest.UseIgnoreFile)
	applyBool(&options.IncludeGit, promptRequest.IncludeGit)
	applyBool(&options.CountTokens, promptRequest.Tokens)
	applyBool(&options.PerFileTokens, promptRequest.FileTokens)
	applyString(&options.Encoding, promptRequest.Encoding)
	applyString(&options.Model, promptRequest.Model)
	applyString(&options.TemplatePath, promptRequest.Template)
	applyBool(&options.WorkingDiff, promptRequest.WorkingDiff)
	applyString(&options.DiffBranch, promptRequest.DiffBranch)
	applyString(&options.LogBranch, promptRequest.LogBranch)
	if promptRequest.Template != "" {
		options.Renderer = nil
	}
	if len(promptRequest.Variables) > 0 {
		merged := make(map[string]string, len(options.Variables)+len(promptRequest.Variables))
		for key, value := range options.Variables {
			merged[key] = value
		}
		for key, value := range promptRequest.Variables {
			merged[key] = value
		}
		options.Variables = merged
	}
	return options
}

func applyBool(target *bool, value *bool) {
	if value != nil {
		*target = *value
	}
}

func applyString(target *string, value string) {
	if strings.TrimSpace(value) != "" {
		*target = value
	}
}

func (server Server) writeError(writer http.ResponseWriter, statusCode int, err error) {
	server.writeJSON(writer, statusCode, map[string]string{errorFieldName: err.Error()})
}

func (server Server) writeJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	var buffer bytes.Buffer
	if encodeErr := json.NewEncoder(&buffer).Encode(payload); encodeErr != nil {
		fallback := map[string]string{errorFieldName: fmt.Sprintf("encode response: %v", encodeErr)}
		writer.Header().Set(headerContentType, mimeTypeJSON)
		writer.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(writer).Encode(fallback)
		return
	}
	writer.Header().Set(headerContentType, mimeTypeJSON)
	writer.WriteHeader(statusCode)
	_, _ = writer.Write(buffer.Bytes())
}

func statusCodeFromError(err error) int {
	var configError *pipeline.ConfigError
	switch {
	case errors.As(err, &configError):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
