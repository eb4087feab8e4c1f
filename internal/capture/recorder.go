package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/magnumstream/studio-agent/internal/template"
)

// MinRecordingDuration is the shortest scene a recorder may stop at.
const MinRecordingDuration = 30 * time.Second

var (
	ErrTooShort          = errors.New("recording is shorter than the 30 second minimum")
	ErrInvalidTransition = errors.New("invalid recorder transition")
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SceneClearer discards the stored takes of a scene on retake.
type SceneClearer interface {
	ClearScene(ctx context.Context, scene template.SceneType) (int, error)
}

type RecorderStatus struct {
	Scene        template.SceneType `json:"sceneType"`
	State        State              `json:"state"`
	Elapsed      float64            `json:"elapsedSeconds"`
	MinDuration  float64            `json:"minDurationSeconds"`
	CanStop      bool               `json:"canStop"`
	HasRecording bool               `json:"hasRecording"`
}

// Recorder tracks one scene through idle, recording, paused and stopped.
// Elapsed time excludes pauses.
type Recorder struct {
	scene   template.SceneType
	clock   Clock
	clearer SceneClearer

	mu          sync.Mutex
	state       State
	segmentFrom time.Time
	accumulated time.Duration
}

func NewRecorder(scene template.SceneType, clock Clock, clearer SceneClearer) *Recorder {
	if clock == nil {
		clock = systemClock{}
	}
	return &Recorder{scene: scene, clock: clock, clearer: clearer, state: StateIdle}
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return r.invalid("start")
	}
	r.state = StateRecording
	r.accumulated = 0
	r.segmentFrom = r.clock.Now()
	return nil
}

func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return r.invalid("pause")
	}
	r.accumulated += r.clock.Now().Sub(r.segmentFrom)
	r.state = StatePaused
	return nil
}

func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePaused {
		return r.invalid("resume")
	}
	r.segmentFrom = r.clock.Now()
	r.state = StateRecording
	return nil
}

// Stop finishes the take. Below MinRecordingDuration it returns ErrTooShort
// and the recorder keeps its state so the operator can keep filming.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording && r.state != StatePaused {
		return r.invalid("stop")
	}
	elapsed := r.elapsedLocked()
	if elapsed < MinRecordingDuration {
		return fmt.Errorf("%w: %s recorded", ErrTooShort, elapsed.Round(100*time.Millisecond))
	}
	r.accumulated = elapsed
	r.state = StateStopped
	return nil
}

// Retake discards the scene's stored takes and returns to idle.
func (r *Recorder) Retake(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clearer != nil {
		if _, err := r.clearer.ClearScene(ctx, r.scene); err != nil {
			return fmt.Errorf("discard takes: %w", err)
		}
	}
	r.state = StateIdle
	r.accumulated = 0
	return nil
}

func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsedLocked()
}

func (r *Recorder) elapsedLocked() time.Duration {
	if r.state == StateRecording {
		return r.accumulated + r.clock.Now().Sub(r.segmentFrom)
	}
	return r.accumulated
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) Status() RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := r.elapsedLocked()
	return RecorderStatus{
		Scene:        r.scene,
		State:        r.state,
		Elapsed:      elapsed.Seconds(),
		MinDuration:  MinRecordingDuration.Seconds(),
		CanStop:      (r.state == StateRecording || r.state == StatePaused) && elapsed >= MinRecordingDuration,
		HasRecording: r.state == StateStopped,
	}
}

func (r *Recorder) invalid(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, r.state)
}

// RecorderSet holds one recorder per scene.
type RecorderSet struct {
	recorders map[template.SceneType]*Recorder
}

func NewRecorderSet(clock Clock, clearer SceneClearer) *RecorderSet {
	set := &RecorderSet{recorders: make(map[template.SceneType]*Recorder, 3)}
	for _, scene := range template.Scenes() {
		set.recorders[scene] = NewRecorder(scene, clock, clearer)
	}
	return set
}

func (s *RecorderSet) Get(scene template.SceneType) (*Recorder, bool) {
	r, ok := s.recorders[scene]
	return r, ok
}

// Apply runs a named action against the scene's recorder.
func (s *RecorderSet) Apply(ctx context.Context, scene template.SceneType, action string) (RecorderStatus, error) {
	r, ok := s.recorders[scene]
	if !ok {
		return RecorderStatus{}, fmt.Errorf("unknown scene type %q", scene)
	}

	var err error
	switch action {
	case "start":
		err = r.Start()
	case "pause":
		err = r.Pause()
	case "resume":
		err = r.Resume()
	case "stop":
		err = r.Stop()
	case "retake":
		err = r.Retake(ctx)
	default:
		err = fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	return r.Status(), err
}

// Reset returns every recorder to idle without touching stored takes. Used
// when a new project session starts.
func (s *RecorderSet) Reset() {
	for _, r := range s.recorders {
		r.mu.Lock()
		r.state = StateIdle
		r.accumulated = 0
		r.mu.Unlock()
	}
}

func (s *RecorderSet) Statuses() []RecorderStatus {
	out := make([]RecorderStatus, 0, len(s.recorders))
	for _, scene := range template.Scenes() {
		out = append(out, s.recorders[scene].Status())
	}
	return out
}
