package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/frame"
)

// ConsoleSettings configures the console sink. It has no options; the
// strict decoder still rejects junk.
type ConsoleSettings struct{}

// Console writes frames to a writer, one line per sample row. Missing
// samples render as "-".
type Console struct {
	w io.Writer
}

// NewConsole creates the sink. A nil writer falls back to os.Stdout.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func newConsoleExporter(settings json.RawMessage, deps Deps) (Exporter, error) {
	var cfg ConsoleSettings
	if err := config.SafeUnmarshal(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "Console", "newConsoleExporter", "settings")
	}
	return NewConsole(deps.Stdout), nil
}

// ID implements Exporter.
func (c *Console) ID() string { return KindConsole }

// Export prints every row of the frame.
func (c *Console) Export(_ context.Context, f *frame.Frame) error {
	names := f.Names()
	times := f.Times()
	columns := make([][]float64, len(names))
	for i, name := range names {
		columns[i], _ = f.Column(name)
	}

	var sb strings.Builder
	for row := range times {
		fmt.Fprintf(&sb, "%s %s", times[row].Format(time.RFC3339), f.Source())
		for i, name := range names {
			v := columns[i][row]
			if frame.IsMissing(v) {
				fmt.Fprintf(&sb, " %s=-", name)
			} else {
				fmt.Fprintf(&sb, " %s=%g", name, v)
			}
		}
		sb.WriteByte('\n')
	}

	if _, err := io.WriteString(c.w, sb.String()); err != nil {
		return errors.Wrap(err, "Console", "Export", "write")
	}
	return nil
}
