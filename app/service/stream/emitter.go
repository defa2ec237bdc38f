package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"

	"voicedesk/app/client/objstore"
	"voicedesk/app/client/tts"
)

const (
	// How long a stream may stay silent before the buffered fallback kicks in.
	streamTimeout = 10 * time.Second

	readBufferSize = 4096
)

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	SynthesizeStream(ctx context.Context, text string) (io.ReadCloser, error)
}

type AudioStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Sink receives outbound audio chunks in order.
type Sink func(chunk []byte) error

// Delivery is the outcome of one response delivery. Text is always set;
// audio is best-effort and its failures land in Errors.
type Delivery struct {
	Text     string
	Streamed bool
	Audio    []byte
	AudioURL string
	Errors   []string
}

// Emitter delivers a response as text plus optional audio, streaming when
// asked and falling back to a single buffered synthesis otherwise.
type Emitter struct {
	synth Synthesizer
	store AudioStore
	clock Clock

	streamTimeout time.Duration
}

func New(di *do.Injector) (*Emitter, error) {
	return &Emitter{
		synth:         do.MustInvoke[*tts.Client](di),
		store:         do.MustInvoke[*objstore.Store](di),
		clock:         SystemClock{},
		streamTimeout: streamTimeout,
	}, nil
}

func NewWithCapabilities(synth Synthesizer, store AudioStore, clock Clock, timeout time.Duration) *Emitter {
	return &Emitter{
		synth:         synth,
		store:         store,
		clock:         clock,
		streamTimeout: timeout,
	}
}

// Deliver produces the delivery for one response. When preferStreaming is
// set it streams synthesis through sink; if the stream yields no data
// before the timeout it falls back to buffered synthesis exactly once.
// The returned error reports sink or context failures only.
func (e *Emitter) Deliver(ctx context.Context, conversationID, text string, wantsAudio, preferStreaming bool, sink Sink) (*Delivery, error) {
	d := &Delivery{Text: text}

	if !wantsAudio {
		return d, nil
	}

	if preferStreaming && sink != nil {
		delivered, err := e.streamAudio(ctx, text, sink, d)
		if err != nil {
			return d, err
		}

		if delivered {
			d.Streamed = true

			return d, nil
		}
	}

	e.buffered(ctx, conversationID, text, d)

	return d, nil
}

// streamAudio reads the synthesis stream and forwards it through sink in
// adaptively sized chunks. Returns delivered=false only when no data ever
// arrived, so the caller falls back without duplicating audio.
func (e *Emitter) streamAudio(ctx context.Context, text string, sink Sink, d *Delivery) (bool, error) {
	body, err := e.synth.SynthesizeStream(ctx, text)
	if err != nil {
		d.Errors = append(d.Errors, "Streaming synthesis failed: "+err.Error())

		return false, nil
	}
	defer body.Close()

	type readResult struct {
		data []byte
		err  error
	}

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	reads := make(chan readResult, 1)

	go func() {
		defer close(reads)

		for {
			buf := make([]byte, readBufferSize)

			n, err := body.Read(buf)
			if n > 0 {
				select {
				case reads <- readResult{data: buf[:n]}:
				case <-readCtx.Done():
					return
				}
			}

			if err != nil {
				select {
				case reads <- readResult{err: err}:
				case <-readCtx.Done():
				}

				return
			}
		}
	}()

	manager := NewBufferManager(e.clock)

	var pending []byte

	emit := func(final bool) error {
		for len(pending) >= manager.Size() || (final && len(pending) > 0) {
			n := min(manager.Size(), len(pending))

			if err := sink(pending[:n]); err != nil {
				return err
			}

			pending = pending[n:]
		}

		return nil
	}

	timeout := time.NewTimer(e.streamTimeout)
	defer timeout.Stop()

	received := false

	for {
		var (
			r  readResult
			ok bool
		)

		if received {
			select {
			case <-ctx.Done():
				return true, ctx.Err()
			case r, ok = <-reads:
			}
		} else {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-timeout.C:
				d.Errors = append(d.Errors, "Streaming synthesis produced no data in time")

				return false, nil
			case r, ok = <-reads:
			}
		}

		if !ok || r.err != nil {
			if r.err != nil && !errors.Is(r.err, io.EOF) {
				d.Errors = append(d.Errors, "Streaming synthesis interrupted: "+r.err.Error())

				// nothing made it to the client, the fallback can still run
				if !received {
					return false, nil
				}
			}

			if err := emit(true); err != nil {
				return received, err
			}

			return received, nil
		}

		received = true

		manager.Observe()

		pending = append(pending, r.data...)

		if err := emit(false); err != nil {
			return true, err
		}
	}
}

func (e *Emitter) buffered(ctx context.Context, conversationID, text string, d *Delivery) {
	audio, err := e.synth.Synthesize(ctx, text)
	if err != nil {
		d.Errors = append(d.Errors, "Synthesis failed: "+err.Error())

		return
	}

	d.Audio = audio

	if e.store == nil {
		return
	}

	key := fmt.Sprintf("responses/%s-%s.wav", conversationID, uuid.NewString())

	url, err := e.store.Put(ctx, key, "audio/wav", audio)
	if err != nil {
		d.Errors = append(d.Errors, "Audio upload failed: "+err.Error())

		return
	}

	d.AudioURL = url
}
