package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	bracketStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	infoStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// statusPrinter writes "[x] message" lines, styled when the destination is a terminal.
type statusPrinter struct {
	writer io.Writer
	styled bool
}

func newStatusPrinter(writer io.Writer, styled bool) statusPrinter {
	return statusPrinter{writer: writer, styled: styled}
}

func (printer statusPrinter) info(message string) {
	printer.print("i", infoStyle, message)
}

func (printer statusPrinter) success(message string) {
	printer.print("✓", successStyle, message)
}

func (printer statusPrinter) warn(message string) {
	printer.print("!", warningStyle, message)
}

func (printer statusPrinter) failure(message string) {
	printer.print("!", failureStyle, message)
}

func (printer statusPrinter) print(marker string, style lipgloss.Style, message string) {
	if !printer.styled {
		fmt.Fprintf(printer.writer, "[%s] %s\n", marker, message)
		return
	}
	fmt.Fprintf(printer.writer, "%s%s%s %s\n",
		bracketStyle.Render("["), style.Render(marker), bracketStyle.Render("]"), style.Render(message))
}
