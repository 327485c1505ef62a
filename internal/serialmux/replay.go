package serialmux

import (
	"io"
	"time"
)

// replayPort feeds recorded protocol lines through a pipe and discards
// anything written to it.
type replayPort struct {
	*io.PipeReader
	w *io.PipeWriter
}

func (p *replayPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *replayPort) Close() error {
	p.w.Close()
	return p.PipeReader.Close()
}

// NewReplaySerialMux creates a SerialMux that replays lines in a loop, one
// every interval, as if they arrived from the sensor. It is used for demos
// driven by a capture file.
func NewReplaySerialMux(lines []string, interval time.Duration) *SerialMux[*replayPort] {
	r, w := io.Pipe()
	port := &replayPort{PipeReader: r, w: w}

	go func() {
		defer w.Close()
		if len(lines) == 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			<-ticker.C
			if _, err := io.WriteString(w, lines[i%len(lines)]+"\n"); err != nil {
				// reader side closed
				return
			}
		}
	}()

	return NewSerialMux(port)
}
