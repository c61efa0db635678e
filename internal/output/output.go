// Package output delivers a rendered prompt to the console, a file or the clipboard,
// or emits it as a structured report.
package output

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/temirov/codeprompt/internal/pipeline"
	"github.com/temirov/codeprompt/internal/services/clipboard"
	"github.com/temirov/codeprompt/internal/types"
	"github.com/temirov/codeprompt/internal/utils"
)

const (
	indentPrefix = ""
	indentSpacer = "  "
	xmlHeader    = xml.Header

	tokenInfoFormat          = "Token count: %d, Model info: %s"
	sizeInfoFormat           = "Prompt size: %s across %d file(s)"
	fileWrittenFormat        = "Prompt written to file: %s"
	clipboardSuccessMessage  = "Copied to clipboard successfully."
	clipboardFailureFormat   = "Failed to copy to clipboard: %v"
	warningSummaryFormat     = "%d warning(s) while building the prompt"
	invalidFormatMessage     = "invalid format value %q"
	writeOutputFileErrFormat = "write output file %s: %w"
)

// Options selects where and how a prompt is delivered.
type Options struct {
	Format     string
	OutputPath string
	Clipboard  bool
	ShowTokens bool
	Stdout     io.Writer
	// Stderr receives status lines so that stdout carries only the prompt.
	Stderr io.Writer
	Copier clipboard.Copier
	Styled bool
	Logger *zap.Logger
}

// IsSupportedFormat reports whether format names a known output format.
func IsSupportedFormat(format string) bool {
	switch format {
	case types.FormatRaw, types.FormatJSON, types.FormatXML:
		return true
	default:
		return false
	}
}

// BuildReport converts a pipeline result into the structured record.
func BuildReport(result pipeline.Result) types.Report {
	report := types.Report{
		Prompt:        result.Rendered,
		DirectoryName: result.Model.RootName,
		TokenCount:    result.Tokens.Count,
		Encoding:      result.Tokens.Encoding,
		ModelInfo:     result.Tokens.ModelInfo,
		SizeBytes:     len(result.Rendered),
		Size:          utils.FormatByteSize(len(result.Rendered)),
		Files:         make([]string, 0, len(result.Files)),
	}
	for _, file := range result.Files {
		report.Files = append(report.Files, file.Path)
		if file.Tokens > 0 {
			if report.FileTokens == nil {
				report.FileTokens = make(map[string]int)
			}
			report.FileTokens[file.Path] = file.Tokens
		}
	}
	for _, warning := range result.Warnings {
		report.Warnings = append(report.Warnings, warning.Error())
	}
	return report
}

// RenderJSON marshals the report with two space indentation.
func RenderJSON(report types.Report) (string, error) {
	encoded, jsonEncodeError := json.MarshalIndent(report, indentPrefix, indentSpacer)
	return string(encoded), jsonEncodeError
}

// RenderXML marshals the report as an XML document.
func RenderXML(report types.Report) (string, error) {
	encoded, xmlMarshalError := xml.MarshalIndent(report, indentPrefix, indentSpacer)
	if xmlMarshalError != nil {
		return "", xmlMarshalError
	}
	return xmlHeader + string(encoded), nil
}

// TokenLine formats the token summary printed after a run.
func TokenLine(report types.TokenReport) string {
	return fmt.Sprintf(tokenInfoFormat, report.Count, report.ModelInfo)
}

// SizeLine formats the prompt size printed after a run.
func SizeLine(result pipeline.Result) string {
	return fmt.Sprintf(sizeInfoFormat, utils.FormatByteSize(len(result.Rendered)), len(result.Files))
}

// Emit delivers result according to options.
//
// Structured formats print the report to stdout, or write it to OutputPath when set.
// The raw format copies the prompt to the clipboard, falling back to stdout when the
// clipboard fails, and writes OutputPath when set. With neither clipboard nor output
// file the prompt is printed to stdout.
func Emit(result pipeline.Result, options Options) error {
	if options.Stdout == nil {
		options.Stdout = os.Stdout
	}
	if options.Stderr == nil {
		options.Stderr = os.Stderr
	}
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	format := options.Format
	if format == "" {
		format = types.FormatRaw
	}
	status := newStatusPrinter(options.Stderr, options.Styled)

	if len(result.Warnings) > 0 {
		status.warn(fmt.Sprintf(warningSummaryFormat, len(result.Warnings)))
	}

	switch format {
	case types.FormatJSON, types.FormatXML:
		rendered, renderError := renderReport(BuildReport(result), format)
		if renderError != nil {
			return renderError
		}
		if options.OutputPath != "" {
			return writeFile(options.OutputPath, rendered, status)
		}
		_, printError := fmt.Fprintln(options.Stdout, rendered)
		return printError
	case types.FormatRaw:
	default:
		return fmt.Errorf(invalidFormatMessage, format)
	}

	if options.ShowTokens && result.Tokens.Encoding != "" {
		status.info(TokenLine(result.Tokens))
		status.info(SizeLine(result))
	}

	printed := false
	if options.Clipboard {
		copier := options.Copier
		if copier == nil {
			copier = clipboard.NewService()
		}
		if copyError := copier.Copy(result.Rendered); copyError != nil {
			options.Logger.Debug("clipboard unavailable", zap.Error(copyError))
			status.failure(fmt.Sprintf(clipboardFailureFormat, copyError))
			if _, printError := fmt.Fprintln(options.Stdout, result.Rendered); printError != nil {
				return printError
			}
			printed = true
		} else {
			status.success(clipboardSuccessMessage)
		}
	}

	if options.OutputPath != "" {
		return writeFile(options.OutputPath, result.Rendered, status)
	}
	if !options.Clipboard && !printed {
		_, printError := fmt.Fprintln(options.Stdout, result.Rendered)
		return printError
	}
	return nil
}

func renderReport(report types.Report, format string) (string, error) {
	if format == types.FormatXML {
		return RenderXML(report)
	}
	return RenderJSON(report)
}

func writeFile(outputPath string, content string, status statusPrinter) error {
	if writeError := os.WriteFile(outputPath, []byte(content), 0o644); writeError != nil {
		return fmt.Errorf(writeOutputFileErrFormat, outputPath, writeError)
	}
	status.success(fmt.Sprintf(fileWrittenFormat, outputPath))
	return nil
}
