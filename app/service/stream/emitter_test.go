package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	streamData []byte
	streamErr  error
	blocking   bool

	synthData []byte
	synthErr  error

	streamCalls int
	synthCalls  int
}

func (f *fakeSynth) Synthesize(context.Context, string) ([]byte, error) {
	f.synthCalls++

	return f.synthData, f.synthErr
}

func (f *fakeSynth) SynthesizeStream(context.Context, string) (io.ReadCloser, error) {
	f.streamCalls++

	if f.streamErr != nil {
		return nil, f.streamErr
	}

	if f.blocking {
		return &blockingReader{done: make(chan struct{})}, nil
	}

	return io.NopCloser(bytes.NewReader(f.streamData)), nil
}

// blockingReader never yields data until closed.
type blockingReader struct {
	done chan struct{}
	once sync.Once
}

func (r *blockingReader) Read([]byte) (int, error) {
	<-r.done

	return 0, io.EOF
}

func (r *blockingReader) Close() error {
	r.once.Do(func() {
		close(r.done)
	})

	return nil
}

type fakeAudioStore struct {
	keys []string
	err  error
}

func (f *fakeAudioStore) Put(_ context.Context, key, _ string, _ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	f.keys = append(f.keys, key)

	return "https://audio.test/" + key, nil
}

func newTestEmitter(synth *fakeSynth, store *fakeAudioStore, timeout time.Duration) *Emitter {
	return NewWithCapabilities(synth, store, SystemClock{}, timeout)
}

func TestDeliverTextOnly(t *testing.T) {
	synth := &fakeSynth{}
	e := newTestEmitter(synth, &fakeAudioStore{}, time.Second)

	d, err := e.Deliver(context.Background(), "conv-1", "hello", false, false, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", d.Text)
	require.False(t, d.Streamed)
	require.Zero(t, synth.synthCalls)
	require.Zero(t, synth.streamCalls)
}

func TestDeliverStreamsAllAudio(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 5000)
	synth := &fakeSynth{streamData: data}
	e := newTestEmitter(synth, &fakeAudioStore{}, time.Second)

	var got []byte
	sink := func(chunk []byte) error {
		got = append(got, chunk...)

		return nil
	}

	d, err := e.Deliver(context.Background(), "conv-1", "hello", true, true, sink)
	require.NoError(t, err)
	require.True(t, d.Streamed)
	require.Equal(t, data, got)
	require.Zero(t, synth.synthCalls, "buffered path must not run after a streamed delivery")
}

func TestDeliverFallsBackOnTimeoutExactlyOnce(t *testing.T) {
	synth := &fakeSynth{
		blocking:  true,
		synthData: []byte("wav-bytes"),
	}
	store := &fakeAudioStore{}
	e := newTestEmitter(synth, store, 20*time.Millisecond)

	sinkCalls := 0
	sink := func([]byte) error {
		sinkCalls++

		return nil
	}

	d, err := e.Deliver(context.Background(), "conv-1", "hello", true, true, sink)
	require.NoError(t, err)
	require.False(t, d.Streamed)
	require.Zero(t, sinkCalls)
	require.Equal(t, 1, synth.streamCalls)
	require.Equal(t, 1, synth.synthCalls)
	require.Equal(t, []byte("wav-bytes"), d.Audio)
	require.Len(t, store.keys, 1)
	require.True(t, strings.HasPrefix(store.keys[0], "responses/conv-1-"))
	require.NotEmpty(t, d.Errors)
}

func TestDeliverFallsBackWhenStreamFailsToOpen(t *testing.T) {
	synth := &fakeSynth{
		streamErr: errors.New("speak endpoint down"),
		synthData: []byte("wav-bytes"),
	}
	e := newTestEmitter(synth, &fakeAudioStore{}, time.Second)

	d, err := e.Deliver(context.Background(), "conv-1", "hello", true, true, func([]byte) error { return nil })
	require.NoError(t, err)
	require.False(t, d.Streamed)
	require.Equal(t, []byte("wav-bytes"), d.Audio)
	require.NotEmpty(t, d.Errors)
}

func TestDeliverBufferedPath(t *testing.T) {
	synth := &fakeSynth{synthData: []byte("wav-bytes")}
	store := &fakeAudioStore{}
	e := newTestEmitter(synth, store, time.Second)

	d, err := e.Deliver(context.Background(), "conv-9", "hello", true, false, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("wav-bytes"), d.Audio)
	require.Equal(t, "https://audio.test/"+store.keys[0], d.AudioURL)
	require.Zero(t, synth.streamCalls)
}

func TestDeliverUploadFailureIsNonFatal(t *testing.T) {
	synth := &fakeSynth{synthData: []byte("wav-bytes")}
	e := newTestEmitter(synth, &fakeAudioStore{err: errors.New("s3 down")}, time.Second)

	d, err := e.Deliver(context.Background(), "conv-1", "hello", true, false, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("wav-bytes"), d.Audio)
	require.Empty(t, d.AudioURL)
	require.NotEmpty(t, d.Errors)
}

func TestDeliverSinkFailureSurfaces(t *testing.T) {
	synth := &fakeSynth{streamData: bytes.Repeat([]byte{1}, 4096)}
	e := newTestEmitter(synth, &fakeAudioStore{}, time.Second)

	sinkErr := errors.New("client gone")

	_, err := e.Deliver(context.Background(), "conv-1", "hello", true, true, func([]byte) error { return sinkErr })
	require.ErrorIs(t, err, sinkErr)
}
