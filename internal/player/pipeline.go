package player

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/glebovdev/streamplay/internal/buffer"
	"github.com/glebovdev/streamplay/internal/decode"
	"github.com/rs/zerolog/log"
)

type eventKind int

const (
	evOpened eventKind = iota
	evTitle
	evProgress
	evDecodeDone
	evPlayed
	evUnderrun
	evComplete
	evFailed
)

func (k eventKind) String() string {
	switch k {
	case evOpened:
		return "opened"
	case evTitle:
		return "title"
	case evProgress:
		return "progress"
	case evDecodeDone:
		return "decode-done"
	case evPlayed:
		return "played"
	case evUnderrun:
		return "underrun"
	case evComplete:
		return "complete"
	case evFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// event is a message from a pipeline activity to the event loop.
type event struct {
	seq           uint64
	kind          eventKind
	contentLength int64
	title         string
	progress      decode.Progress
	played        time.Duration
	err           error
}

// pipeline holds the goroutines serving one sequence number. It is torn
// down whenever the sequence number moves on.
type pipeline struct {
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
	ring   *buffer.Ring
	clock  *clock
	wg     sync.WaitGroup

	// decodeDone is set by the event loop once the decoder has finished.
	decodeDone bool
	// completed records a clock completion that arrived while paused. The
	// session finishes on the next resume.
	completed bool
}

// fetchPlan says where to open the source and how to timestamp what it
// yields.
type fetchPlan struct {
	url    string
	offset int64
	at     time.Duration
}

func (p *Player) startPipeline(plan fetchPlan) {
	p.seq++
	ctx, cancel := context.WithCancel(p.ctx)
	pl := &pipeline{
		seq:    p.seq,
		ctx:    ctx,
		cancel: cancel,
		ring:   buffer.NewRing(p.opts.HighWatermark),
	}
	pl.clock = newClock(pl.ring, p.sink, p.opts.PollTimeout, p.opts.UnderrunPolls, func(ev event) {
		p.send(pl, ev)
	})
	p.pipe = pl
	p.setRing(pl.ring)

	log.Debug().
		Str("session", p.sessionID()).
		Uint64("seq", pl.seq).
		Int64("offset", plan.offset).
		Dur("at", plan.at).
		Msg("Starting pipeline")

	pl.wg.Add(2)
	go func() {
		defer pl.wg.Done()
		p.fetchAndDecode(pl, plan)
	}()
	go func() {
		defer pl.wg.Done()
		pl.clock.loop(ctx)
	}()
}

// teardown cancels the current pipeline and waits for it. Audio still queued
// in the sink is dropped.
func (p *Player) teardown() {
	pl := p.pipe
	if pl == nil {
		return
	}
	p.pipe = nil
	p.setRing(nil)
	pl.cancel()
	pl.wg.Wait()
	p.sink.Clear()
	log.Debug().Uint64("seq", pl.seq).Msg("Pipeline torn down")
}

// send delivers ev to the event loop unless the pipeline is cancelled first.
func (p *Player) send(pl *pipeline, ev event) {
	ev.seq = pl.seq
	select {
	case p.events <- ev:
	case <-pl.ctx.Done():
	}
}

func (p *Player) fetchAndDecode(pl *pipeline, plan fetchPlan) {
	ctx := pl.ctx

	if p.codecErr != nil {
		pl.ring.Close()
		p.send(pl, event{kind: evDecodeDone, err: p.codecErr})
		return
	}

	stream, err := p.client.Open(ctx, plan.url, plan.offset)
	if err != nil {
		pl.ring.Close()
		if ctx.Err() == nil {
			p.send(pl, event{kind: evDecodeDone, err: err})
		}
		return
	}
	p.send(pl, event{kind: evOpened, contentLength: stream.ContentLength()})

	start := decode.Start{
		Offset:        stream.Offset(),
		ContentLength: stream.ContentLength(),
	}
	if start.Offset > 0 {
		start.Base = plan.at
	} else {
		if plan.offset > 0 {
			log.Debug().Msg("Server ignored range request, decoding from the start")
		}
		start.SkipTo = plan.at
	}

	pr, pw := io.Pipe()
	defer pr.Close()

	pl.wg.Add(1)
	go func() {
		defer pl.wg.Done()
		stream.Pump(ctx, pw, func(title string) {
			p.send(pl, event{kind: evTitle, title: title})
		})
	}()

	q := decode.New(p.codec, pl.ring, decode.Options{
		BlockFrames: p.opts.BlockFrames,
		OnProgress: func(prog decode.Progress) {
			p.send(pl, event{kind: evProgress, progress: prog})
		},
		SourceErr: stream.Err,
	})
	err = q.Run(ctx, pr, start)
	if ctx.Err() != nil {
		return
	}
	p.send(pl, event{kind: evDecodeDone, err: err})
}
