package session

import (
	"sync"
	"time"

	"voicedesk/app/protocol"
	"voicedesk/app/service/history"
	"voicedesk/app/service/orchestrator"
	"voicedesk/app/service/vad"
)

// Session is one live conversation. All mutable fields sit behind mu;
// the processing flag makes transcription single-flight per session.
type Session struct {
	ID       string
	CallerID string

	mu sync.Mutex

	hist       history.History
	audioQueue [][]byte
	queueBytes int

	processing        bool
	lastChunk         time.Time
	lastTranscription time.Time
	silencePolls      int

	customerName     string
	category         orchestrator.Category
	serviceType      string
	lastActionResult string

	lastActivity time.Time
	out          protocol.Sender

	monitor *vad.Monitor
}

// observeEnergy feeds one chunk's energy to the fast silence path and
// reports whether the caller just stopped talking. Fires at most once
// per silent stretch.
func (s *Session) observeEnergy(energy float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.monitor == nil {
		return false
	}

	if s.monitor.Observe(energy) {
		s.monitor.Reset()

		return true
	}

	return false
}

// TryBegin claims the session for one processing pass. A false return
// means another pass is already running.
func (s *Session) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return false
	}

	s.processing = true

	return true
}

func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processing = false
}

func (s *Session) Messages() []history.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hist.All()
}

// drainQueue removes and concatenates all pending audio.
func (s *Session) drainQueue() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.audioQueue) == 0 {
		return nil
	}

	audio := make([]byte, 0, s.queueBytes)
	for _, chunk := range s.audioQueue {
		audio = append(audio, chunk...)
	}

	s.audioQueue = nil
	s.queueBytes = 0

	return audio
}

func (s *Session) enqueue(chunk []byte, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audioQueue = append(s.audioQueue, chunk)
	s.queueBytes += len(chunk)
	s.lastChunk = now
	s.silencePolls = 0
	s.lastActivity = now
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActivity = now
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActivity
}

func (s *Session) sender() protocol.Sender {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.out
}

func (s *Session) attach(out protocol.Sender, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out = out
	s.lastActivity = now
}

func (s *Session) detach(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.out = nil
	s.lastActivity = now
}

func (s *Session) addUser(text string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hist.Add(history.RoleUser, text, now)
	s.lastActivity = now
}

func (s *Session) markTranscribed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTranscription = now
}

// absorb folds one orchestration result into the session. Name and
// category stick once learned; the service type follows the latest turn.
func (s *Session) absorb(res *orchestrator.Result, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.customerName == "" && res.CustomerName != "" && res.CustomerName != "Unknown" {
		s.customerName = res.CustomerName
	}

	if s.category == "" {
		s.category = res.Category
	}

	if res.Service != "" {
		s.serviceType = res.Service
	}

	if res.ActionResult != "" {
		s.lastActionResult = res.ActionResult
	}

	if res.Response != "" {
		s.hist.Add(history.RoleAssistant, res.Response, now)
	}

	s.lastActivity = now
}

func (s *Session) stickyCategory() orchestrator.Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.category == "" {
		return orchestrator.CategoryInquiry
	}

	return s.category
}

func (s *Session) shouldFlush(now time.Time, minGap time.Duration, minChunks int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing {
		return false
	}

	if !s.lastTranscription.IsZero() && now.Sub(s.lastTranscription) <= minGap {
		return false
	}

	return len(s.audioQueue) >= minChunks
}

// observeSilence advances the silence counter when audio is pending but
// no new chunk arrived during the last poll interval.
func (s *Session) observeSilence(now time.Time, interval time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.audioQueue) == 0 {
		s.silencePolls = 0

		return 0
	}

	if !s.processing && now.Sub(s.lastChunk) >= interval {
		s.silencePolls++
	}

	return s.silencePolls
}

func (s *Session) resetSilence() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.silencePolls = 0
}

func (s *Session) send(frame protocol.ServerFrame) {
	out := s.sender()
	if out == nil {
		return
	}

	_ = out.Send(frame)
}
