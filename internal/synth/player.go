package synth

import (
	"context"
	"time"

	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/banshee-data/plantconnect/internal/periodic"
	"github.com/banshee-data/plantconnect/internal/timeutil"
)

// DefaultBlockSize is about 23 ms at 44.1 kHz.
const DefaultBlockSize = 1024

// Player pulls one block from the engine per block period and hands it to
// the writer.
type Player struct {
	engine *Engine
	out    PCMWriter
	clock  timeutil.Clock
	buf    []float32
}

func NewPlayer(engine *Engine, out PCMWriter, clock timeutil.Clock, blockSize int) *Player {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Player{engine: engine, out: out, clock: clock, buf: make([]float32, blockSize)}
}

// Period is the wall time one block covers.
func (p *Player) Period() time.Duration {
	return time.Duration(len(p.buf)) * time.Second / time.Duration(p.engine.SampleRate())
}

// Start renders until ctx is done or the handle is stopped. Write errors are
// logged and the block is dropped.
func (p *Player) Start(ctx context.Context) *periodic.Handle {
	return periodic.Run(ctx, p.clock, p.Period(), func(time.Time) {
		p.engine.Render(p.buf)
		if err := p.out.WritePCM(p.buf); err != nil {
			monitoring.Logf("synth: write block: %v", err)
		}
	})
}
