package session

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voicedesk/app/protocol"
	"voicedesk/app/service/fault"
	"voicedesk/app/service/history"
	"voicedesk/app/service/orchestrator"
	"voicedesk/app/service/stream"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	audio [][]byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.audio = append(f.audio, audio)

	return f.text, f.err
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

type fakeOrchestrator struct {
	mu     sync.Mutex
	res    *orchestrator.Result
	inputs []orchestrator.Input
}

func (f *fakeOrchestrator) Run(_ context.Context, in orchestrator.Input) *orchestrator.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inputs = append(f.inputs, in)

	out := *f.res

	return &out
}

func (f *fakeOrchestrator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.inputs)
}

type fakeDeliverer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeDeliverer) Deliver(_ context.Context, _, text string, wantsAudio, _ bool, _ stream.Sink) (*stream.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	d := &stream.Delivery{Text: text}
	if wantsAudio {
		d.Audio = []byte("wav")
	}

	return d, nil
}

type fakePersister struct {
	mu            sync.Mutex
	conversations []orchestrator.ConversationRecord
}

func (f *fakePersister) RecordBooking(context.Context, orchestrator.BookingRecord) (int64, error) {
	return 1, nil
}

func (f *fakePersister) RecordComplaint(context.Context, orchestrator.ComplaintRecord) (int64, error) {
	return 1, nil
}

func (f *fakePersister) RecordInquiry(context.Context, orchestrator.InquiryRecord) (int64, error) {
	return 1, nil
}

func (f *fakePersister) RecordFeedback(context.Context, orchestrator.FeedbackRecord) (int64, error) {
	return 1, nil
}

func (f *fakePersister) RecordConversation(_ context.Context, rec orchestrator.ConversationRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conversations = append(f.conversations, rec)

	return int64(len(f.conversations)), nil
}

func (f *fakePersister) stored() []orchestrator.ConversationRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]orchestrator.ConversationRecord(nil), f.conversations...)
}

type fakeSender struct {
	mu     sync.Mutex
	frames []protocol.ServerFrame
}

func (f *fakeSender) Send(frame protocol.ServerFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.frames = append(f.frames, frame)

	return nil
}

func (f *fakeSender) typesSent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, 0, len(f.frames))
	for _, frame := range f.frames {
		types = append(types, frame.Type)
	}

	return types
}

type fixture struct {
	manager     *Manager
	clock       *fakeClock
	transcriber *fakeTranscriber
	orch        *fakeOrchestrator
	deliverer   *fakeDeliverer
	persister   *fakePersister
	sender      *fakeSender
}

func newFixture() *fixture {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	transcriber := &fakeTranscriber{text: "I would like to book a massage for tomorrow"}
	orch := &fakeOrchestrator{res: &orchestrator.Result{
		RefinedQuery: "I would like to book a massage for tomorrow",
		Category:     orchestrator.CategoryBooking,
		Response:     "Your massage is booked for tomorrow.",
		IsValid:      true,
		CustomerName: "Anna",
		Service:      "massage",
	}}
	deliverer := &fakeDeliverer{}
	persister := &fakePersister{}

	return &fixture{
		manager:     NewWithCapabilities(transcriber, orch, deliverer, persister, NewMemoryStore(), clock),
		clock:       clock,
		transcriber: transcriber,
		orch:        orch,
		deliverer:   deliverer,
		persister:   persister,
		sender:      &fakeSender{},
	}
}

// loudChunk is 16-bit PCM far above the silence floor.
func loudChunk(n int) []byte {
	return bytes.Repeat([]byte{0x00, 0x40}, n/2)
}

func TestFlushAfterEnoughChunks(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess := f.manager.Init("+1555", "", f.sender)
	require.NotEmpty(t, sess.ID)

	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	require.Zero(t, f.transcriber.callCount(), "one chunk must not flush")

	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	require.Equal(t, 1, f.transcriber.callCount())
	require.Len(t, f.transcriber.audio[0], 120, "chunks are concatenated before transcription")

	require.Equal(t, 1, f.orch.callCount())
	require.Equal(t, "+1555", f.orch.inputs[0].CallerID)

	types := f.sender.typesSent()
	require.Contains(t, types, protocol.TypeTranscription)
	require.Contains(t, types, protocol.TypeResponse)
	require.Contains(t, types, protocol.TypeAudio)

	msgs := sess.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, history.RoleUser, msgs[0].Role)
	require.Equal(t, history.RoleAssistant, msgs[1].Role)
}

func TestFlushIsSingleFlight(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess := f.manager.Init("+1555", "", f.sender)

	require.True(t, sess.TryBegin())

	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	require.Zero(t, f.transcriber.callCount(), "a held processing claim blocks the flush")

	sess.End()

	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	require.Equal(t, 1, f.transcriber.callCount())
	require.Len(t, f.transcriber.audio[0], 180, "queued chunks survive the blocked attempt")
}

func TestFlushRespectsMinGap(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess := f.manager.Init("+1555", "", f.sender)

	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	require.Equal(t, 1, f.transcriber.callCount())

	// right after a transcription the gate stays closed
	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	require.Equal(t, 1, f.transcriber.callCount())

	f.clock.advance(600 * time.Millisecond)

	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	require.Equal(t, 2, f.transcriber.callCount())
}

func TestTinyAudioIsDiscarded(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess := f.manager.Init("+1555", "", f.sender)

	f.manager.OnAudioFragment(ctx, sess, loudChunk(20))
	f.manager.OnAudioFragment(ctx, sess, loudChunk(20))

	require.Zero(t, f.transcriber.callCount(), "under 100 bytes is never transcribed")
	require.Empty(t, f.sender.typesSent())

	sess.mu.Lock()
	lastTranscription := sess.lastTranscription
	sess.mu.Unlock()
	require.True(t, lastTranscription.IsZero(), "a discarded flush must not advance the transcription clock")
}

func TestShortRealtimeTranscriptWaitsForMore(t *testing.T) {
	f := newFixture()
	f.transcriber.text = "yes please"
	ctx := context.Background()

	sess := f.manager.Init("+1555", "", f.sender)

	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))
	f.manager.OnAudioFragment(ctx, sess, loudChunk(60))

	require.Equal(t, 1, f.transcriber.callCount())
	require.Zero(t, f.orch.callCount(), "short realtime transcript defers the pipeline")

	types := f.sender.typesSent()
	require.Contains(t, types, protocol.TypeTranscription)
	require.NotContains(t, types, protocol.TypeResponse)

	// the words still belong to the conversation
	msgs := sess.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "yes please", msgs[0].Content)
}

func TestExplicitStopRunsShortTranscriptAndStores(t *testing.T) {
	f := newFixture()
	f.transcriber.text = "yes please"
	ctx := context.Background()

	sess := f.manager.Init("+1555", "conv-fixed", f.sender)

	f.manager.OnAudioFragment(ctx, sess, loudChunk(120))
	f.manager.OnExplicitStop(ctx, sess)

	require.Equal(t, 1, f.transcriber.callCount())
	require.Equal(t, 1, f.orch.callCount(), "explicit stop skips the short-transcript gate")

	stored := f.persister.stored()
	require.Len(t, stored, 1)
	require.Equal(t, "conv-fixed", stored[0].ConversationID)
	require.Equal(t, "+1555", stored[0].CallerID)
	require.Equal(t, string(orchestrator.CategoryBooking), stored[0].Category)
	require.Len(t, stored[0].Messages, 2)

	require.Contains(t, f.sender.typesSent(), protocol.TypeConversationStored)

	_, err := f.manager.Resolve("+1555", "conv-fixed")
	require.True(t, fault.Is(err, fault.CodeSessionNotFound), "a stored conversation is retired")
}

func TestSilenceWatchFlushesExactlyOnce(t *testing.T) {
	f := newFixture()
	f.manager.PollInterval = 2 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := f.manager.Init("+1555", "", f.sender)

	f.manager.OnAudioFragment(ctx, sess, loudChunk(120))
	require.Zero(t, f.transcriber.callCount())

	// no more chunks arrive; every poll now counts as silent
	f.clock.advance(time.Second)

	go f.manager.RunSilenceWatch(ctx, sess)

	require.Eventually(t, func() bool {
		return f.transcriber.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	// the queue is empty, further polls must not flush again
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, f.transcriber.callCount())
}

func TestIdleSessionsAreEvicted(t *testing.T) {
	f := newFixture()

	sess, err := f.manager.Resolve("+1555", "")
	require.NoError(t, err)

	again, err := f.manager.Resolve("+1555", sess.ID)
	require.NoError(t, err)
	require.Same(t, sess, again)

	f.clock.advance(31 * time.Minute)

	removed := f.manager.store.SweepIdle(f.clock.Now().Add(-f.manager.IdleTimeout))
	require.Equal(t, 1, removed)

	_, err = f.manager.Resolve("+1555", sess.ID)
	require.True(t, fault.Is(err, fault.CodeSessionNotFound))
}

func TestResolveUnknownConversation(t *testing.T) {
	f := newFixture()

	_, err := f.manager.Resolve("+1555", "conv-missing")
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.CodeSessionNotFound))
}

func TestStickyFieldsAcrossTurns(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess := f.manager.Init("+1555", "", f.sender)

	_, err := f.manager.ProcessAudio(ctx, sess, loudChunk(120), TurnOptions{})
	require.NoError(t, err)

	// a later turn reclassifies and names someone else
	f.orch.res = &orchestrator.Result{
		Category:     orchestrator.CategoryFeedback,
		Response:     "Thanks for the feedback!",
		IsValid:      true,
		CustomerName: "Bob",
		Service:      "haircut",
	}

	_, err = f.manager.ProcessAudio(ctx, sess, loudChunk(120), TurnOptions{})
	require.NoError(t, err)

	require.Equal(t, "Anna", sess.customerName, "first learned name sticks")
	require.Equal(t, orchestrator.CategoryBooking, sess.category, "first category sticks")
	require.Equal(t, "haircut", sess.serviceType, "service type follows the latest turn")
}

func TestTranscriptionHistoryFeedsNextTurn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sess := f.manager.Init("+1555", "", f.sender)

	_, err := f.manager.ProcessAudio(ctx, sess, loudChunk(120), TurnOptions{})
	require.NoError(t, err)

	_, err = f.manager.ProcessAudio(ctx, sess, loudChunk(120), TurnOptions{})
	require.NoError(t, err)

	require.Len(t, f.orch.inputs, 2)
	require.Empty(t, f.orch.inputs[0].History)
	require.Len(t, f.orch.inputs[1].History, 2, "second turn sees the first exchange")
}
