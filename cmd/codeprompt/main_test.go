package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/temirov/codeprompt/internal/types"
)

const (
	integrationBinaryBaseName = "codeprompt_integration_binary"
	onePixelPNGBase64Content  = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAASsJTYQAAAAASUVORK5CYII="
)

// buildBinary compiles the command once per test into a temporary directory.
func buildBinary(testingHandle *testing.T) string {
	testingHandle.Helper()
	if testing.Short() {
		testingHandle.Skip("integration test builds the binary")
	}
	binaryName := integrationBinaryBaseName
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}
	binaryPath := filepath.Join(testingHandle.TempDir(), binaryName)
	buildCommand := exec.Command("go", "build", "-o", binaryPath, ".")
	combinedOutput, buildError := buildCommand.CombinedOutput()
	if buildError != nil {
		testingHandle.Fatalf("build failed: %v\n%s", buildError, string(combinedOutput))
	}
	return binaryPath
}

type commandOutput struct {
	stdout   string
	stderr   string
	exitCode int
}

func runBinary(testingHandle *testing.T, binaryPath string, workingDirectory string, arguments ...string) commandOutput {
	testingHandle.Helper()
	command := exec.Command(binaryPath, arguments...)
	command.Dir = workingDirectory
	command.Env = append(os.Environ(), "HOME="+testingHandle.TempDir())
	var stdoutBuffer, stderrBuffer bytes.Buffer
	command.Stdout = &stdoutBuffer
	command.Stderr = &stderrBuffer
	runError := command.Run()
	result := commandOutput{stdout: stdoutBuffer.String(), stderr: stderrBuffer.String()}
	if runError != nil {
		exitError, isExitError := runError.(*exec.ExitError)
		if !isExitError {
			testingHandle.Fatalf("run %v: %v", arguments, runError)
		}
		result.exitCode = exitError.ExitCode()
	}
	return result
}

func mustDecodeBase64(testingHandle *testing.T, encoded string) []byte {
	testingHandle.Helper()
	decoded, decodeError := base64.StdEncoding.DecodeString(encoded)
	if decodeError != nil {
		testingHandle.Fatalf("decode fixture: %v", decodeError)
	}
	return decoded
}

func setupTestDirectory(testingHandle *testing.T, layout map[string]string) string {
	testingHandle.Helper()
	root := testingHandle.TempDir()
	for relativePath, content := range layout {
		absolutePath := filepath.Join(root, filepath.FromSlash(relativePath))
		if err := os.MkdirAll(filepath.Dir(absolutePath), 0o755); err != nil {
			testingHandle.Fatalf("mkdir %s: %v", relativePath, err)
		}
		if err := os.WriteFile(absolutePath, []byte(content), 0o644); err != nil {
			testingHandle.Fatalf("write %s: %v", relativePath, err)
		}
	}
	return root
}

func TestCommandEndToEnd(testingHandle *testing.T) {
	binaryPath := buildBinary(testingHandle)
	pngBytes := mustDecodeBase64(testingHandle, onePixelPNGBase64Content)
	root := setupTestDirectory(testingHandle, map[string]string{
		"visible.txt":                "visible",
		"ignored.txt":                "ignore",
		".gitignore":                 "ignored.txt\nnode_modules/\n",
		"node_modules/dependency.js": "dependency",
		".ignore":                    "[binary]\nassets/\n",
		"assets/fixture.png":         string(pngBytes),
		"other/unmatched.png":        string(pngBytes),
	})

	testingHandle.Run("raw prompt on stdout", func(testingHandle *testing.T) {
		output := runBinary(testingHandle, binaryPath, root, "--no-clipboard", "--tokens=false")
		if output.exitCode != 0 {
			testingHandle.Fatalf("unexpected exit %d: %s", output.exitCode, output.stderr)
		}
		for _, expected := range []string{"`visible.txt`:", onePixelPNGBase64Content, "[binary content omitted]"} {
			if !strings.Contains(output.stdout, expected) {
				testingHandle.Fatalf("expected %q in prompt:\n%s", expected, output.stdout)
			}
		}
		for _, unexpected := range []string{"ignored.txt", "dependency.js", "`.gitignore`"} {
			if strings.Contains(output.stdout, unexpected) {
				testingHandle.Fatalf("did not expect %q in prompt:\n%s", unexpected, output.stdout)
			}
		}
	})

	testingHandle.Run("json report", func(testingHandle *testing.T) {
		output := runBinary(testingHandle, binaryPath, root, "--format", "json", "--tokens=false", "-i", "*.txt")
		if output.exitCode != 0 {
			testingHandle.Fatalf("unexpected exit %d: %s", output.exitCode, output.stderr)
		}
		var report types.Report
		if err := json.Unmarshal([]byte(output.stdout), &report); err != nil {
			testingHandle.Fatalf("decode report: %v\n%s", err, output.stdout)
		}
		if len(report.Files) != 2 || report.Files[0] != "ignored.txt" || report.Files[1] != "visible.txt" {
			testingHandle.Fatalf("include should rescue ignored files, got %v", report.Files)
		}
	})

	testingHandle.Run("configuration error exits non-zero", func(testingHandle *testing.T) {
		output := runBinary(testingHandle, binaryPath, root, "--no-clipboard", "-e", "src/[")
		if output.exitCode == 0 {
			testingHandle.Fatal("expected non-zero exit for an invalid glob")
		}
		if output.stdout != "" {
			testingHandle.Fatalf("expected no prompt on stdout, got %q", output.stdout)
		}
		if !strings.Contains(output.stderr, "invalid pattern") {
			testingHandle.Fatalf("expected a readable error, got %q", output.stderr)
		}
	})

	testingHandle.Run("version", func(testingHandle *testing.T) {
		output := runBinary(testingHandle, binaryPath, root, "--version")
		if !strings.HasPrefix(output.stdout, "codeprompt version: ") {
			testingHandle.Fatalf("unexpected version output %q", output.stdout)
		}
	})
}
