package audio

import (
	"fmt"
	"io"
	"strings"
)

// Meter renders a single-line console volume indicator for interactive runs.
// It rewrites the line in place and inserts a newline when a recording ends
// so the transcript output does not clobber the meter.
type Meter struct {
	out           io.Writer
	width         int
	prevRecording bool
}

// NewMeter creates a volume meter writing to out.
func NewMeter(out io.Writer) *Meter {
	return &Meter{out: out, width: 40}
}

// Render draws the current level and state.
func (m *Meter) Render(db float64, recording bool) {
	normalized := 0.0
	if db > SilenceDB {
		normalized = (db - 30) / 40
		if normalized < 0 {
			normalized = 0
		}
		if normalized > 1 {
			normalized = 1
		}
	}
	bars := int(normalized * float64(m.width))

	status := "LISTENING"
	if recording {
		status = "RECORDING"
	}

	if m.prevRecording && !recording {
		fmt.Fprintln(m.out)
	}

	fmt.Fprintf(m.out, "\r%s: |%s%s| %.1f dB",
		status,
		strings.Repeat("#", bars),
		strings.Repeat(" ", m.width-bars),
		db,
	)

	m.prevRecording = recording
}
