package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"

	"voicedesk/app/client/stt"
	"voicedesk/app/protocol"
	"voicedesk/app/service/fault"
	"voicedesk/app/service/orchestrator"
	"voicedesk/app/service/stream"
	"voicedesk/app/service/vad"
)

const (
	// MinAudioBytes is the smallest payload worth transcribing.
	MinAudioBytes = 100

	pollInterval   = 500 * time.Millisecond
	silencePolls   = 3
	minFlushGap    = 500 * time.Millisecond
	minFlushChunks = 2
	idleTimeout    = 30 * time.Minute
	janitorPeriod  = time.Minute

	// Realtime transcripts at or below this length wait for more audio
	// before the pipeline runs.
	shortTranscriptLimit = 20
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Orchestrator interface {
	Run(ctx context.Context, in orchestrator.Input) *orchestrator.Result
}

type Deliverer interface {
	Deliver(ctx context.Context, conversationID, text string, wantsAudio, preferStreaming bool, sink stream.Sink) (*stream.Delivery, error)
}

// Manager owns the session lifecycle and drives audio through
// transcription, orchestration and delivery.
type Manager struct {
	transcriber Transcriber
	orch        Orchestrator
	emitter     Deliverer
	persister   orchestrator.Persister
	store       Store
	clock       Clock

	PollInterval   time.Duration
	SilencePolls   int
	MinFlushGap    time.Duration
	MinFlushChunks int
	MinAudioBytes  int
	IdleTimeout    time.Duration
}

func New(di *do.Injector) (*Manager, error) {
	return NewWithCapabilities(
		do.MustInvoke[*stt.Client](di),
		do.MustInvoke[*orchestrator.Service](di),
		do.MustInvoke[*stream.Emitter](di),
		do.MustInvoke[orchestrator.Persister](di),
		NewMemoryStore(),
		SystemClock{},
	), nil
}

func NewWithCapabilities(transcriber Transcriber, orch Orchestrator, emitter Deliverer, persister orchestrator.Persister, store Store, clock Clock) *Manager {
	return &Manager{
		transcriber: transcriber,
		orch:        orch,
		emitter:     emitter,
		persister:   persister,
		store:       store,
		clock:       clock,

		PollInterval:   pollInterval,
		SilencePolls:   silencePolls,
		MinFlushGap:    minFlushGap,
		MinFlushChunks: minFlushChunks,
		MinAudioBytes:  MinAudioBytes,
		IdleTimeout:    idleTimeout,
	}
}

// Init creates or reattaches the session for one websocket connection.
// An empty conversation id starts a fresh conversation.
func (m *Manager) Init(callerID, conversationID string, out protocol.Sender) *Session {
	now := m.clock.Now()

	if conversationID == "" {
		conversationID = "conv-" + uuid.NewString()
	}

	if s, ok := m.store.Get(conversationID); ok {
		s.attach(out, now)

		return s
	}

	s := &Session{
		ID:       conversationID,
		CallerID: callerID,
		monitor:  vad.NewMonitor(vad.NewDetector(1.0), m.clock),
	}
	s.attach(out, now)

	m.store.Put(s)

	return s
}

// Resolve finds the session for one HTTP turn. A supplied but unknown id
// is an error; an absent id starts a fresh conversation.
func (m *Manager) Resolve(callerID, conversationID string) (*Session, error) {
	if conversationID != "" {
		s, ok := m.store.Get(conversationID)
		if !ok {
			return nil, fault.New(fault.CodeSessionNotFound, "conversation %s not found", conversationID)
		}

		s.touch(m.clock.Now())

		return s, nil
	}

	s := &Session{
		ID:       "conv-" + uuid.NewString(),
		CallerID: callerID,
		monitor:  vad.NewMonitor(vad.NewDetector(1.0), m.clock),
	}
	s.touch(m.clock.Now())

	m.store.Put(s)

	return s, nil
}

// OnAudioFragment queues one decoded chunk and flushes when enough audio
// piled up and no other pass is running.
func (m *Manager) OnAudioFragment(ctx context.Context, s *Session, chunk []byte) {
	now := m.clock.Now()

	s.enqueue(chunk, now)

	// fast silence path: the energy monitor confirms the caller stopped
	// talking before the poll loop would
	if s.observeEnergy(vad.ChunkEnergy(chunk)) {
		m.flush(ctx, s, false, false)

		return
	}

	if s.shouldFlush(now, m.MinFlushGap, m.MinFlushChunks) {
		m.flush(ctx, s, true, false)
	}
}

// OnExplicitStop runs the final pass and stores the conversation.
func (m *Manager) OnExplicitStop(ctx context.Context, s *Session) {
	m.flush(ctx, s, false, true)
}

// OnClose detaches the connection. The session itself survives until the
// janitor evicts it, so a reconnect with the same id picks up the history.
func (m *Manager) OnClose(s *Session) {
	s.detach(m.clock.Now())
}

// RunSilenceWatch polls one session for a pause in incoming audio and
// flushes the pending utterance once the pause held for enough polls.
func (m *Manager) RunSilenceWatch(ctx context.Context, s *Session) {
	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.observeSilence(m.clock.Now(), m.PollInterval) >= m.SilencePolls {
				s.resetSilence()
				m.flush(ctx, s, false, false)
			}
		}
	}
}

// RunJanitor evicts sessions idle for longer than the timeout.
func (m *Manager) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.store.SweepIdle(m.clock.Now().Add(-m.IdleTimeout)); n > 0 {
				slog.Info("Evicted idle sessions", "count", n)
			}
		}
	}
}

func (m *Manager) flush(ctx context.Context, s *Session, gateShort, persist bool) {
	if !s.TryBegin() {
		return
	}
	defer s.End()

	audio := s.drainQueue()

	if len(audio) < m.MinAudioBytes {
		if persist {
			res := &TurnResult{}

			m.finishConversation(ctx, s, res)

			if res.Stored {
				s.send(protocol.ConversationStored())
			}
		}

		return
	}

	opts := TurnOptions{
		GateShort:       gateShort,
		Persist:         persist,
		WantsAudio:      true,
		PreferStreaming: true,
		OnTranscription: func(text string) {
			s.send(protocol.Transcription(text))
		},
		OnResponse: func(text string) {
			s.send(protocol.Response(text))
		},
		Sink: func(chunk []byte) error {
			out := s.sender()
			if out == nil {
				return fault.New(fault.CodeProtocol, "connection is gone")
			}

			return out.Send(protocol.Audio(chunk))
		},
	}

	res, err := m.ProcessAudio(ctx, s, audio, opts)
	if err != nil {
		slog.Error("Audio processing failed",
			"conversation", s.ID,
			"error", err)

		s.send(protocol.ErrorFrame("Audio processing failed"))

		return
	}

	if res.Delivery != nil && !res.Delivery.Streamed && len(res.Delivery.Audio) > 0 {
		s.send(protocol.Audio(res.Delivery.Audio))
	}

	for _, msg := range res.Errors {
		slog.Warn("Turn degraded",
			"conversation", s.ID,
			"detail", msg)
	}

	if res.Stored {
		s.send(protocol.ConversationStored())
	}
}

type TurnOptions struct {
	GateShort       bool
	Persist         bool
	WantsAudio      bool
	PreferStreaming bool

	OnTranscription func(text string)
	OnResponse      func(text string)
	Sink            stream.Sink
}

type TurnResult struct {
	Transcription string
	Refined       string
	Response      string
	Category      string
	Delivery      *stream.Delivery
	Stored        bool
	Errors        []string
}

// ProcessAudio runs one full turn over already-collected audio. The caller
// holds the session's processing claim.
func (m *Manager) ProcessAudio(ctx context.Context, s *Session, audio []byte, opts TurnOptions) (*TurnResult, error) {
	now := m.clock.Now()
	s.touch(now)

	text, err := m.transcriber.Transcribe(ctx, audio)
	if err != nil {
		return nil, err
	}

	s.markTranscribed(m.clock.Now())

	res := &TurnResult{Transcription: text}

	if text == "" {
		if opts.Persist {
			m.finishConversation(ctx, s, res)
		}

		return res, nil
	}

	if opts.OnTranscription != nil {
		opts.OnTranscription(text)
	}

	prior := s.Messages()

	s.addUser(text, m.clock.Now())

	if opts.GateShort && len(text) <= shortTranscriptLimit {
		return res, nil
	}

	out := m.orch.Run(ctx, orchestrator.Input{
		Query:    text,
		CallerID: s.CallerID,
		History:  prior,
	})

	res.Refined = out.RefinedQuery
	res.Response = out.Response
	res.Category = string(out.Category)
	res.Errors = append(res.Errors, out.Errors...)

	s.absorb(out, m.clock.Now())

	if opts.OnResponse != nil && out.Response != "" {
		opts.OnResponse(out.Response)
	}

	if out.Response != "" {
		delivery, err := m.emitter.Deliver(ctx, s.ID, out.Response, opts.WantsAudio, opts.PreferStreaming, opts.Sink)
		if err != nil {
			res.Errors = append(res.Errors, "Audio delivery failed: "+err.Error())
		}

		if delivery != nil {
			res.Delivery = delivery
			res.Errors = append(res.Errors, delivery.Errors...)
		}
	}

	if opts.Persist {
		m.finishConversation(ctx, s, res)
	}

	return res, nil
}

// finishConversation stores the transcript and retires the session.
// A conversation with no messages is dropped without a record.
func (m *Manager) finishConversation(ctx context.Context, s *Session, res *TurnResult) {
	msgs := s.Messages()
	if len(msgs) == 0 {
		m.store.Delete(s.ID)

		return
	}

	rec := orchestrator.ConversationRecord{
		ConversationID: s.ID,
		CallerID:       s.CallerID,
		Category:       string(s.stickyCategory()),
		Messages:       msgs,
	}

	if _, err := m.persister.RecordConversation(ctx, rec); err != nil {
		slog.Error("Failed to store conversation",
			"conversation", s.ID,
			"error", err)

		if res != nil {
			res.Errors = append(res.Errors, "Failed to store conversation: "+err.Error())
		}

		return
	}

	if res != nil {
		res.Stored = true
	}

	m.store.Delete(s.ID)
}
