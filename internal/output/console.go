package output

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/mitchellh/colorstring"
)

const panelWidth = 34

// ConsoleOutput draws each display record as a small panel.
type ConsoleOutput struct {
	mu       sync.Mutex
	w        io.Writer
	colorize colorstring.Colorize
}

// NewConsoleOutput writes panels to w, with ANSI colours unless noColor.
func NewConsoleOutput(w io.Writer, noColor bool) *ConsoleOutput {
	return &ConsoleOutput{
		w: w,
		colorize: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: noColor,
			Reset:   true,
		},
	}
}

func statusColor(s models.SpeedStatus) string {
	switch s {
	case models.SpeedStatusViolation:
		return "red"
	case models.SpeedStatusWarning:
		return "yellow"
	default:
		return "green"
	}
}

func (c *ConsoleOutput) Write(rec models.DisplayRecord) error {
	color := statusColor(rec.Status)

	var b strings.Builder
	header := "+-- " + rec.DetectionID + " "
	if pad := panelWidth - len(header); pad > 0 {
		header += strings.Repeat("-", pad)
	}
	b.WriteString(c.colorize.Color("[bold]" + header))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "| vehicle  %s\n", rec.VehicleType)
	b.WriteString(c.colorize.Color(fmt.Sprintf("| speed    [%s]%d km/h[reset] (limit %d)", color, rec.SpeedKmh, rec.ApplicableLimitKmh)))
	b.WriteByte('\n')
	b.WriteString(c.colorize.Color(fmt.Sprintf("| status   [%s]%s", color, strings.ToUpper(rec.Status.String()))))
	b.WriteByte('\n')

	if rec.Plate != "" {
		style := "[bold]"
		if models.IsErrorMarker(rec.Plate) {
			style = "[red]"
		}
		b.WriteString(c.colorize.Color("| plate    " + style + rec.Plate))
		b.WriteByte('\n')
	}
	b.WriteString("+" + strings.Repeat("-", panelWidth-1) + "\n")

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *ConsoleOutput) Close() error {
	return nil
}
