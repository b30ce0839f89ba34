// Package player plays one stream URL behind a small transport-control surface.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/glebovdev/streamplay/internal/buffer"
	"github.com/glebovdev/streamplay/internal/decode"
	"github.com/glebovdev/streamplay/internal/output"
	"github.com/glebovdev/streamplay/internal/source"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLowWatermark  = 500 * time.Millisecond
	DefaultHighWatermark = 5 * time.Second
	DefaultPollTimeout   = 100 * time.Millisecond
	DefaultUnderrunPolls = 3
	EventQueueSize       = 64
)

// Options configures a Player. Zero values fall back to defaults.
type Options struct {
	// Codec names the decoder; the stream format is never sniffed.
	Codec  string
	Client *source.Client
	Sink   output.Sink

	LowWatermark  time.Duration
	HighWatermark time.Duration
	PollTimeout   time.Duration
	UnderrunPolls int
	BlockFrames   int

	// Autoplay starts playback as soon as the player is constructed.
	Autoplay bool
	// OnStatusChange is called from the event loop after every transition.
	// It must not call back into the Player's control methods.
	OnStatusChange func(from, to Status)
}

func (o *Options) applyDefaults() {
	if o.Client == nil {
		o.Client = source.NewClient(source.Options{})
	}
	if o.Sink == nil {
		o.Sink = output.NewNull()
	}
	if o.HighWatermark <= 0 {
		o.HighWatermark = DefaultHighWatermark
	}
	if o.LowWatermark <= 0 {
		o.LowWatermark = DefaultLowWatermark
	}
	if o.LowWatermark > o.HighWatermark {
		o.LowWatermark = o.HighWatermark
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	if o.UnderrunPolls <= 0 {
		o.UnderrunPolls = DefaultUnderrunPolls
	}
	if o.BlockFrames <= 0 {
		o.BlockFrames = decode.DefaultBlockFrames
	}
}

// session holds everything observable about the current stream. A zero
// contentLength or duration means not yet known.
type session struct {
	id            string
	contentLength int64
	duration      time.Duration
	durationExact bool
	playedTime    time.Duration
	title         string
	err           error
}

// Player streams one URL. All transitions happen on a single event-loop
// goroutine; getters never wait for it.
type Player struct {
	url      string
	opts     Options
	client   *source.Client
	codec    decode.Codec
	codecErr error
	sink     output.Sink

	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan func()
	events    chan event
	closing   chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	closeErr  error

	// Owned by the event loop.
	seq          uint64
	pipe         *pipeline
	pendingPause bool

	stateMu sync.RWMutex
	status  Status
	sess    session
	ring    *buffer.Ring
}

// New binds url to a Player in the Idle state.
func New(url string, opts Options) *Player {
	opts.applyDefaults()

	codec, err := decode.Lookup(opts.Codec)
	if err != nil {
		log.Error().Err(err).Msg("Unknown codec, playback will fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		url:      url,
		opts:     opts,
		client:   opts.Client,
		codec:    codec,
		codecErr: err,
		sink:     opts.Sink,
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan func()),
		events:   make(chan event, EventQueueSize),
		closing:  make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	go p.loop()

	if opts.Autoplay {
		p.Play()
	}
	return p
}

func (p *Player) loop() {
	defer close(p.loopDone)

	for {
		select {
		case cmd := <-p.cmds:
			cmd()
		case ev := <-p.events:
			p.handle(ev)
		case <-p.closing:
			p.teardown()
			if p.Status() != Idle {
				p.setStatus(Idle)
			}
			return
		}
	}
}

// do runs fn on the event loop and waits until it has been applied.
func (p *Player) do(fn func()) {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}
	select {
	case p.cmds <- cmd:
		<-done
	case <-p.loopDone:
	}
}

// Play starts a new session from Idle or Finished and resumes from Paused.
func (p *Player) Play() {
	p.do(p.play)
}

// Pause stops the clock while Playing. Pausing while Waiting takes effect
// once the buffer is ready, so playback never starts.
func (p *Player) Pause() {
	p.do(p.pause)
}

// TogglePause pauses when playing and plays otherwise.
func (p *Player) TogglePause() {
	p.do(func() {
		switch p.Status() {
		case Playing:
			p.pause()
		case Waiting:
			if p.pendingPause {
				p.play()
			} else {
				p.pause()
			}
		default:
			p.play()
		}
	})
}

// SeekToProgress restarts playback at t, clamped to the known duration.
func (p *Player) SeekToProgress(t time.Duration) {
	p.do(func() { p.seek(t) })
}

// Stop tears the session down and returns to Idle.
func (p *Player) Stop() {
	p.do(p.stop)
}

// SetVolume sets the sink volume in percent.
func (p *Player) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	p.sink.SetVolume(percent)
}

// Close stops playback and releases the sink. The Player is unusable
// afterwards.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		close(p.closing)
		<-p.loopDone
		p.cancel()
		p.closeErr = p.sink.Close()
	})
	return p.closeErr
}

func (p *Player) play() {
	switch st := p.Status(); st {
	case Idle, Finished:
		p.startSession()
	case Paused:
		p.resume()
	case Waiting:
		if p.pendingPause {
			p.pendingPause = false
			log.Debug().Msg("Pending pause cancelled")
		}
	default:
		log.Debug().Msgf("Play ignored in state %s", st)
	}
}

func (p *Player) pause() {
	switch st := p.Status(); st {
	case Playing:
		p.pipe.clock.hold()
		p.sink.Pause()
		p.setStatus(Paused)
	case Waiting:
		if !p.pendingPause {
			p.pendingPause = true
			log.Debug().Msg("Pause deferred until buffered")
		}
	default:
		log.Debug().Msgf("Pause ignored in state %s", st)
	}
}

func (p *Player) seek(t time.Duration) {
	st := p.Status()
	if st == Idle {
		log.Debug().Msg("Seek ignored while idle")
		return
	}

	s := p.snapshot()
	if t < 0 {
		t = 0
	}
	if s.duration > 0 && t > s.duration {
		t = s.duration
	}

	keepPaused := st == Paused || p.pendingPause
	p.teardown()

	plan := fetchPlan{url: p.url, at: t}
	if t > 0 && p.codecErr == nil && p.codec.Resumable() && s.contentLength > 0 && s.duration > 0 {
		plan.offset = p.codec.SeekOffset(t, s.duration, s.contentLength)
	}

	p.update(func(s *session) {
		s.playedTime = t
		s.err = nil
	})
	p.pendingPause = keepPaused
	log.Debug().Dur("to", t).Int64("offset", plan.offset).Msg("Seeking")
	p.setStatus(Waiting)
	p.startPipeline(plan)
}

func (p *Player) stop() {
	if p.Status() == Idle {
		log.Debug().Msg("Stop ignored while idle")
		return
	}
	p.teardown()
	p.pendingPause = false
	p.stateMu.Lock()
	p.sess = session{}
	p.stateMu.Unlock()
	p.setStatus(Idle)
	log.Debug().Msg("Playback stopped")
}

func (p *Player) startSession() {
	p.teardown()
	p.pendingPause = false

	id := uuid.NewString()
	p.stateMu.Lock()
	p.sess = session{id: id}
	p.stateMu.Unlock()

	log.Info().Str("session", id).Str("url", p.url).Msg("Starting session")
	p.setStatus(Waiting)
	p.startPipeline(fetchPlan{url: p.url})
}

func (p *Player) resume() {
	if p.pipe != nil && p.pipe.completed {
		p.finish()
		return
	}
	if p.buffered() {
		p.startClock()
		return
	}
	p.setStatus(Waiting)
}

func (p *Player) buffered() bool {
	pl := p.pipe
	if pl == nil {
		return false
	}
	return pl.decodeDone || pl.ring.Filled() >= p.opts.LowWatermark
}

func (p *Player) startClock() {
	p.setStatus(Playing)
	p.sink.Resume()
	p.pipe.clock.run()
}

// checkBuffered settles Waiting once enough audio is queued.
func (p *Player) checkBuffered() {
	if p.Status() != Waiting || !p.buffered() {
		return
	}
	if p.pendingPause {
		p.pendingPause = false
		p.setStatus(Paused)
		return
	}
	p.startClock()
}

func (p *Player) handle(ev event) {
	pl := p.pipe
	if pl == nil || ev.seq != pl.seq {
		log.Debug().Uint64("seq", ev.seq).Msgf("Discarding stale %s event", ev.kind)
		return
	}

	switch ev.kind {
	case evOpened:
		if ev.contentLength > 0 {
			p.update(func(s *session) {
				if s.contentLength == 0 {
					s.contentLength = ev.contentLength
					log.Debug().Int64("bytes", ev.contentLength).Msg("Content length known")
				}
			})
		}
	case evTitle:
		p.update(func(s *session) {
			if s.title != ev.title {
				s.title = ev.title
				log.Debug().Msgf("Now playing: %s", ev.title)
			}
		})
	case evProgress:
		p.applyDuration(ev.progress)
		p.checkBuffered()
	case evDecodeDone:
		pl.decodeDone = true
		if ev.err != nil {
			p.fail(ev.err)
			return
		}
		p.checkBuffered()
	case evPlayed:
		p.advance(ev.played)
	case evUnderrun:
		if p.Status() == Playing {
			log.Warn().Dur("filled", pl.ring.Filled()).Msg("Buffer underrun")
			p.setStatus(Waiting)
			p.checkBuffered()
		}
	case evComplete:
		switch p.Status() {
		case Playing:
			p.finish()
		case Paused:
			pl.completed = true
			log.Debug().Msg("Stream played out while paused")
		}
	case evFailed:
		p.fail(ev.err)
	}
}

func (p *Player) applyDuration(pr decode.Progress) {
	if pr.Duration <= 0 {
		return
	}
	p.update(func(s *session) {
		if s.durationExact {
			return
		}
		s.duration = pr.Duration
		if pr.Exact {
			s.durationExact = true
			if s.playedTime > s.duration {
				s.playedTime = s.duration
			}
		}
	})
}

// advance moves playedTime forward; it never moves back and never passes
// an exact duration.
func (p *Player) advance(t time.Duration) {
	if p.Status() != Playing {
		return
	}
	p.update(func(s *session) {
		if s.durationExact && t > s.duration {
			t = s.duration
		}
		if t > s.playedTime {
			s.playedTime = t
		}
	})
}

func (p *Player) finish() {
	p.teardown()
	p.pendingPause = false
	p.update(func(s *session) {
		if s.durationExact && s.playedTime < s.duration {
			s.playedTime = s.duration
		}
	})
	log.Info().Str("session", p.sessionID()).Msg("Playback finished")
	p.setStatus(Finished)
}

func (p *Player) fail(err error) {
	log.Error().Err(err).Str("session", p.sessionID()).Msg("Session failed")
	p.teardown()
	p.pendingPause = false
	p.update(func(s *session) { s.err = err })
	p.setStatus(Finished)
}

func (p *Player) setStatus(to Status) {
	p.stateMu.Lock()
	from := p.status
	if from == to {
		p.stateMu.Unlock()
		return
	}
	if !CanTransition(from, to) {
		p.stateMu.Unlock()
		log.Error().Msgf("Refusing invalid transition %s -> %s", from, to)
		return
	}
	p.status = to
	p.stateMu.Unlock()

	log.Debug().Msgf("Player state: %s -> %s", from, to)
	if p.opts.OnStatusChange != nil {
		p.opts.OnStatusChange(from, to)
	}
}

func (p *Player) update(fn func(s *session)) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	fn(&p.sess)
}

func (p *Player) snapshot() session {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.sess
}

func (p *Player) sessionID() string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.sess.id
}

func (p *Player) setRing(r *buffer.Ring) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.ring = r
}

// URL returns the bound stream URL.
func (p *Player) URL() string {
	return p.url
}

// ContentLength returns the resource length in bytes, 0 until known.
func (p *Player) ContentLength() int64 {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.sess.contentLength
}

// Duration returns the stream duration: an estimate until the whole stream
// has been decoded, 0 until it can be estimated.
func (p *Player) Duration() time.Duration {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.sess.duration
}

// DurationExact reports whether Duration is final.
func (p *Player) DurationExact() bool {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.sess.durationExact
}

// PlayedTime returns how far into the stream playback has got.
func (p *Player) PlayedTime() time.Duration {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.sess.playedTime
}

// Status returns the current player state.
func (p *Player) Status() Status {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.status
}

// Err returns why the last session finished early, if it did.
func (p *Player) Err() error {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.sess.err
}

// Title returns the ICY stream title, if the server sends one.
func (p *Player) Title() string {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.sess.title
}

// Buffer reports how much decoded audio is queued ahead of the clock.
func (p *Player) Buffer() BufferState {
	p.stateMu.RLock()
	ring := p.ring
	p.stateMu.RUnlock()

	bs := BufferState{
		LowWatermark:  p.opts.LowWatermark,
		HighWatermark: p.opts.HighWatermark,
	}
	if ring != nil {
		bs.Filled = ring.Filled()
	}
	return bs
}
