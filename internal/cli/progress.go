package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/temirov/codeprompt/internal/pipeline"
	"github.com/temirov/codeprompt/internal/types"
)

const (
	spinnerDelay         = 100 * time.Millisecond
	progressStartMessage = "Scanning files..."
	progressWalkFormat   = "Discovered %d files..."
	progressReadFormat   = "Reading files %d/%d..."
	progressTokensText   = "Counting tokens..."
	progressGitText      = "Collecting git context..."
)

// progressIndicator shows a spinner on stderr while a prompt is generated. It is a
// no-op when stderr is not a terminal.
type progressIndicator struct {
	mutex   sync.Mutex
	spinner *pterm.SpinnerPrinter
	last    string
}

func startProgress(writer io.Writer, interactive bool) *progressIndicator {
	indicator := &progressIndicator{}
	if !interactive {
		return indicator
	}
	spinner, startErr := pterm.DefaultSpinner.
		WithWriter(writer).
		WithStyle(pterm.NewStyle(pterm.FgLightBlue)).
		WithSequence("⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏").
		WithDelay(spinnerDelay).
		WithRemoveWhenDone(true).
		Start(progressStartMessage)
	if startErr == nil {
		indicator.spinner = spinner
	}
	return indicator
}

// update is passed as pipeline.Options.Progress and may be called concurrently.
func (indicator *progressIndicator) update(progress pipeline.Progress) {
	if indicator.spinner == nil {
		return
	}
	text := progressText(progress)
	indicator.mutex.Lock()
	defer indicator.mutex.Unlock()
	if text == indicator.last || indicator.spinner == nil {
		return
	}
	indicator.last = text
	indicator.spinner.UpdateText(text)
}

func (indicator *progressIndicator) stop() {
	indicator.mutex.Lock()
	defer indicator.mutex.Unlock()
	if indicator.spinner == nil {
		return
	}
	_ = indicator.spinner.Stop()
	indicator.spinner = nil
}

func progressText(progress pipeline.Progress) string {
	switch progress.Stage {
	case types.StageAggregate:
		return fmt.Sprintf(progressReadFormat, progress.Aggregated, progress.Discovered)
	case types.StageTokens:
		return progressTokensText
	case types.StageGit:
		return progressGitText
	default:
		return fmt.Sprintf(progressWalkFormat, progress.Discovered)
	}
}
