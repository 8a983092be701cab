// Package scanner drives frame classification at a bounded cadence and
// merges the results into the packing list.
//
// Frames are gated, never queued: a frame offered while a classification
// request is outstanding, or before the cooldown since the previous
// request has elapsed, is dropped. The cooldown restarts when a request
// completes, whether it succeeded or failed, so the request rate stays
// bounded regardless of the error rate.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/rcliao/movemate/internal/classifier"
	"github.com/rcliao/movemate/internal/model"
	"github.com/rcliao/movemate/internal/packlist"
	"github.com/rcliao/movemate/internal/store"
)

// Detector classifies one encoded frame. *classifier.Adapter implements it.
type Detector interface {
	Detect(ctx context.Context, image []byte) classifier.Result
}

// Recorder receives one record per classification round. store.Log
// implements it.
type Recorder interface {
	RecordRound(ctx context.Context, p store.RoundParams) (*model.Round, error)
}

// State is the request state of the scanner.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
)

// Outcome says what happened to an offered frame.
type Outcome string

const (
	Accepted        Outcome = "accepted"
	DroppedIdle     Outcome = "dropped_idle"     // scanning is off
	DroppedBusy     Outcome = "dropped_busy"     // a request is outstanding
	DroppedCooldown Outcome = "dropped_cooldown" // cooldown has not elapsed
)

// Report describes the handling of one offered frame.
type Report struct {
	Outcome    Outcome `json:"outcome"`
	Added      string  `json:"added,omitempty"`
	Candidates int     `json:"candidates"`
	Items      int     `json:"items"`
	Err        error   `json:"-"`
}

// Notice is the transient "just added" notification.
type Notice struct {
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Status is a snapshot of the scanner's control state.
type Status struct {
	Scanning      bool      `json:"active"`
	State         State     `json:"state"`
	LastCompleted time.Time `json:"last_completed"`
	NextEligible  time.Time `json:"next_eligible"`
}

// Stats are operational counters.
type Stats struct {
	Offered         uint64 `json:"offered"`
	Requests        uint64 `json:"requests"`
	Failures        uint64 `json:"failures"`
	DroppedIdle     uint64 `json:"dropped_idle"`
	DroppedBusy     uint64 `json:"dropped_busy"`
	DroppedCooldown uint64 `json:"dropped_cooldown"`
	CaptureErrors   uint64 `json:"capture_errors"`
	Admitted        uint64 `json:"admitted"`
}

// Options configures a Scanner.
type Options struct {
	Cooldown  time.Duration
	NoticeTTL time.Duration
	Provider  string // recorded with each round
	Recorder  Recorder
	Logger    log.Logger
	Now       func() time.Time
}

// Scanner owns the packing list and the capture gate. All list access
// goes through it.
type Scanner struct {
	mu            sync.Mutex
	list          *packlist.List
	detector      Detector
	opts          Options
	logger        log.Logger
	now           func() time.Time
	state         State
	scanning      bool
	lastCompleted time.Time
	notice        Notice
	stats         Stats
}

// New creates a Scanner. Scanning starts switched off.
func New(d Detector, opts Options) *Scanner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Scanner{
		list:     packlist.New(now),
		detector: d,
		opts:     opts,
		logger:   log.With(logger, "component", "scanner"),
		now:      now,
		state:    StateIdle,
	}
}

// SetScanning switches frame acceptance on or off.
func (s *Scanner) SetScanning(on bool) {
	s.mu.Lock()
	changed := s.scanning != on
	s.scanning = on
	s.mu.Unlock()
	if changed {
		level.Info(s.logger).Log("msg", "scanning toggled", "scanning", on)
	}
}

// gate reports whether a frame would be accepted now. Callers hold s.mu.
func (s *Scanner) gate(now time.Time) Outcome {
	switch {
	case !s.scanning:
		return DroppedIdle
	case s.state == StateRequesting:
		return DroppedBusy
	case !s.lastCompleted.IsZero() && now.Sub(s.lastCompleted) < s.opts.Cooldown:
		return DroppedCooldown
	}
	return Accepted
}

func (s *Scanner) countDrop(o Outcome) {
	switch o {
	case DroppedIdle:
		s.stats.DroppedIdle++
	case DroppedBusy:
		s.stats.DroppedBusy++
	case DroppedCooldown:
		s.stats.DroppedCooldown++
	}
}

// Ready reports whether a frame offered now would be accepted.
func (s *Scanner) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gate(s.now()) == Accepted
}

// Offer submits one frame. If the gate is open the frame is classified and
// the detections admitted; otherwise it is dropped. The returned error is
// non-nil only when ctx ended before a request was issued; classification
// failures are reported in Report.Err and admit nothing.
func (s *Scanner) Offer(ctx context.Context, frame []byte) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	s.mu.Lock()
	s.stats.Offered++
	if o := s.gate(s.now()); o != Accepted {
		s.countDrop(o)
		n := s.list.Len()
		s.mu.Unlock()
		return Report{Outcome: o, Items: n}, nil
	}
	s.state = StateRequesting
	s.stats.Requests++
	s.mu.Unlock()

	started := s.now()
	res := s.detector.Detect(ctx, frame)

	s.mu.Lock()
	added := s.list.AdmitItems(res.Items)
	finished := s.now()
	s.lastCompleted = finished
	s.state = StateIdle
	if res.Err != nil {
		s.stats.Failures++
	}
	s.stats.Admitted += uint64(len(added))

	rep := Report{Outcome: Accepted, Candidates: len(res.Items), Items: s.list.Len(), Err: res.Err}
	if len(added) > 0 {
		rep.Added = added[len(added)-1].Name
		s.notice = Notice{Name: rep.Added, ExpiresAt: finished.Add(s.opts.NoticeTTL)}
	}
	s.mu.Unlock()

	if len(added) > 0 {
		level.Info(s.logger).Log("msg", "items admitted", "count", len(added), "last", rep.Added, "total", rep.Items)
	}
	s.record(ctx, started, finished, frame, res, added)
	return rep, nil
}

func (s *Scanner) record(ctx context.Context, started, finished time.Time, frame []byte, res classifier.Result, added []model.PackingItem) {
	if s.opts.Recorder == nil {
		return
	}

	// added holds verbatim names in candidate order
	admitted := make([]bool, len(res.Items))
	j := 0
	for i, c := range res.Items {
		if j < len(added) && c.Name == added[j].Name {
			admitted[i] = true
			j++
		}
	}

	p := store.RoundParams{
		StartedAt:  started,
		FinishedAt: finished,
		FrameBytes: len(frame),
		Provider:   s.opts.Provider,
		Err:        res.Err,
		Candidates: res.Items,
		Admitted:   admitted,
	}
	if len(added) > 0 {
		p.Added = added[len(added)-1].Name
	}
	if _, err := s.opts.Recorder.RecordRound(context.WithoutCancel(ctx), p); err != nil {
		level.Warn(s.logger).Log("msg", "record round failed", "err", err)
	}
}

// Items returns the packing list, most recent first.
func (s *Scanner) Items() []model.PackingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Items()
}

// Snapshot returns the list together with its revision.
func (s *Scanner) Snapshot() ([]model.PackingItem, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Items(), s.list.Revision()
}

// Delete removes one item; unknown ids are ignored.
func (s *Scanner) Delete(id string) bool {
	s.mu.Lock()
	removed := s.list.Delete(id)
	s.mu.Unlock()
	if removed {
		level.Info(s.logger).Log("msg", "item deleted", "id", id)
	}
	return removed
}

// Clear empties the packing list.
func (s *Scanner) Clear() {
	s.mu.Lock()
	n := s.list.Len()
	s.list.Clear()
	s.mu.Unlock()
	level.Info(s.logger).Log("msg", "list cleared", "removed", n)
}

// Notice returns the current notification while it is unexpired.
func (s *Scanner) Notice() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice.Name == "" || !s.now().Before(s.notice.ExpiresAt) {
		return Notice{}, false
	}
	return s.notice, true
}

// Status returns the control state.
func (s *Scanner) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Scanning: s.scanning, State: s.state, LastCompleted: s.lastCompleted}
	if !s.lastCompleted.IsZero() {
		st.NextEligible = s.lastCompleted.Add(s.opts.Cooldown)
	}
	return st
}

// Stats returns a snapshot of the counters.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
