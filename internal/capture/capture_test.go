package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/magnumstream/studio-agent/internal/companion"
	"github.com/magnumstream/studio-agent/internal/db"
	"github.com/magnumstream/studio-agent/internal/media"
	"github.com/magnumstream/studio-agent/internal/session"
	"github.com/magnumstream/studio-agent/internal/template"
)

type fixedSession struct {
	id string
}

func (f *fixedSession) RequireSessionID(context.Context) (string, error) {
	if f.id == "" {
		return "", session.ErrNoSession
	}
	return f.id, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupStore(t *testing.T) (*VideoStore, *fixedSession, *fakeClock) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	sess := &fixedSession{id: "anna"}
	clock := newFakeClock()
	store := NewVideoStore(database.Conn(), t.TempDir(), sess, nil)
	store.now = clock.Now
	return store, sess, clock
}

func TestVideoStore_NewestTakeWins(t *testing.T) {
	store, _, clock := setupStore(t)
	ctx := context.Background()

	if _, err := store.StoreVideo(ctx, template.SceneCruising, 1, strings.NewReader("take1"), 40, ".webm"); err != nil {
		t.Fatalf("StoreVideo() error = %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := store.StoreVideo(ctx, template.SceneCruising, 1, strings.NewReader("take2"), 55, ".webm"); err != nil {
		t.Fatalf("StoreVideo() error = %v", err)
	}

	d, ok, err := store.GetVideoDuration(ctx, template.SceneCruising)
	if err != nil || !ok {
		t.Fatalf("GetVideoDuration() = %v, %v, %v", d, ok, err)
	}
	if d != 55 {
		t.Errorf("duration = %v, want 55", d)
	}

	rec, err := store.GetVideo(ctx, template.SceneCruising, 1)
	if err != nil {
		t.Fatalf("GetVideo() error = %v", err)
	}
	body, _ := os.ReadFile(rec.Path)
	if string(body) != "take2" {
		t.Errorf("newest take body = %q, want take2", body)
	}
}

func TestVideoStore_SameMillisecondTakesGetDistinctIDs(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	a, err := store.StoreVideo(ctx, template.SceneChase, 2, strings.NewReader("a"), 31, "webm")
	if err != nil {
		t.Fatalf("StoreVideo() error = %v", err)
	}
	b, err := store.StoreVideo(ctx, template.SceneChase, 2, strings.NewReader("b"), 32, "webm")
	if err != nil {
		t.Fatalf("StoreVideo() error = %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("duplicate id %s", a.ID)
	}
	if !strings.HasPrefix(a.ID, "anna_chase_camera2_") {
		t.Errorf("id = %s", a.ID)
	}
	got, _ := store.GetVideo(ctx, template.SceneChase, 2)
	if got.ID != b.ID {
		t.Errorf("GetVideo() = %s, want later take %s", got.ID, b.ID)
	}
}

func TestVideoStore_MissIsNotAnError(t *testing.T) {
	store, _, _ := setupStore(t)
	ctx := context.Background()

	rec, err := store.GetVideo(ctx, template.SceneArrival, 2)
	if err != nil || rec != nil {
		t.Errorf("GetVideo() = %v, %v; want nil, nil", rec, err)
	}
	_, ok, err := store.GetVideoDuration(ctx, template.SceneArrival)
	if err != nil || ok {
		t.Errorf("GetVideoDuration() ok=%v err=%v; want false, nil", ok, err)
	}
}

func TestVideoStore_ScopedToSession(t *testing.T) {
	store, sess, _ := setupStore(t)
	ctx := context.Background()

	store.StoreVideo(ctx, template.SceneCruising, 1, strings.NewReader("x"), 40, ".webm")
	sess.id = "ben"

	rec, err := store.GetVideo(ctx, template.SceneCruising, 1)
	if err != nil || rec != nil {
		t.Errorf("other session's take leaked: %v, %v", rec, err)
	}
}

func TestVideoStore_RequiresSession(t *testing.T) {
	store, sess, _ := setupStore(t)
	sess.id = ""
	_, err := store.StoreVideo(context.Background(), template.SceneCruising, 1, strings.NewReader("x"), 40, "")
	if !errors.Is(err, session.ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestVideoStore_ClearScene(t *testing.T) {
	store, _, clock := setupStore(t)
	ctx := context.Background()

	a, _ := store.StoreVideo(ctx, template.SceneChase, 1, strings.NewReader("a"), 35, ".webm")
	clock.Advance(time.Second)
	store.StoreVideo(ctx, template.SceneChase, 2, strings.NewReader("b"), 35, ".webm")
	store.StoreVideo(ctx, template.SceneArrival, 1, strings.NewReader("c"), 35, ".webm")

	n, err := store.ClearScene(ctx, template.SceneChase)
	if err != nil {
		t.Fatalf("ClearScene() error = %v", err)
	}
	if n != 2 {
		t.Errorf("cleared = %d, want 2", n)
	}
	if _, err := os.Stat(a.Path); !os.IsNotExist(err) {
		t.Error("take file still on disk")
	}
	if rec, _ := store.GetVideo(ctx, template.SceneArrival, 1); rec == nil {
		t.Error("ClearScene removed another scene")
	}
}

func TestVideoStore_ListSessionNewestPerKey(t *testing.T) {
	store, _, clock := setupStore(t)
	ctx := context.Background()

	store.StoreVideo(ctx, template.SceneChase, 1, strings.NewReader("old"), 30, ".webm")
	clock.Advance(time.Second)
	newer, _ := store.StoreVideo(ctx, template.SceneChase, 1, strings.NewReader("new"), 33, ".webm")
	store.StoreVideo(ctx, template.SceneCruising, 2, strings.NewReader("c"), 40, ".webm")

	recs, err := store.ListSession(ctx)
	if err != nil {
		t.Fatalf("ListSession() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].SceneType != template.SceneCruising || recs[1].ID != newer.ID {
		t.Errorf("recs = %+v, %+v", recs[0], recs[1])
	}
}

func TestVideoStore_PurgeOlderThan(t *testing.T) {
	store, _, clock := setupStore(t)
	ctx := context.Background()

	store.StoreVideo(ctx, template.SceneChase, 1, strings.NewReader("old"), 30, ".webm")
	cutoff := clock.Now().Add(time.Hour)
	clock.Advance(2 * time.Hour)
	store.StoreVideo(ctx, template.SceneChase, 2, strings.NewReader("new"), 30, ".webm")

	n, err := store.PurgeOlderThan(ctx, cutoff)
	if err != nil || n != 1 {
		t.Fatalf("PurgeOlderThan() = %d, %v", n, err)
	}
	recs, _ := store.ListSession(ctx)
	if len(recs) != 1 || recs[0].CameraAngle != 2 {
		t.Errorf("remaining = %+v", recs)
	}
}

func TestRecorder_StopGuard(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
		want    State
	}{
		{"29 seconds blocked", 29 * time.Second, ErrTooShort, StateRecording},
		{"just under blocked", 30*time.Second - time.Millisecond, ErrTooShort, StateRecording},
		{"30 seconds allowed", 30 * time.Second, nil, StateStopped},
		{"long take allowed", 3 * time.Minute, nil, StateStopped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			r := NewRecorder(template.SceneCruising, clock, nil)
			if err := r.Start(); err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			clock.Advance(tt.elapsed)

			err := r.Stop()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Stop() error = %v, want %v", err, tt.wantErr)
			}
			if r.State() != tt.want {
				t.Errorf("state = %s, want %s", r.State(), tt.want)
			}
		})
	}
}

func TestRecorder_PausedTimeNotCounted(t *testing.T) {
	clock := newFakeClock()
	r := NewRecorder(template.SceneChase, clock, nil)

	r.Start()
	clock.Advance(20 * time.Second)
	if err := r.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	clock.Advance(time.Minute)

	if err := r.Stop(); !errors.Is(err, ErrTooShort) {
		t.Fatalf("Stop() while paused at 20s = %v, want ErrTooShort", err)
	}
	if r.State() != StatePaused {
		t.Errorf("state = %s, want paused", r.State())
	}

	r.Resume()
	clock.Advance(10 * time.Second)
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() at 30s = %v", err)
	}
	if got := r.Elapsed(); got != 30*time.Second {
		t.Errorf("elapsed = %v, want 30s", got)
	}
	if st := r.Status(); !st.HasRecording {
		t.Error("stopped recorder should report a recording")
	}
}

func TestRecorder_InvalidTransitions(t *testing.T) {
	r := NewRecorder(template.SceneArrival, newFakeClock(), nil)

	for name, fn := range map[string]func() error{
		"pause idle":  r.Pause,
		"resume idle": r.Resume,
		"stop idle":   r.Stop,
	} {
		if err := fn(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s: err = %v, want ErrInvalidTransition", name, err)
		}
	}

	r.Start()
	if err := r.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("double start err = %v", err)
	}
}

type recordingClearer struct {
	cleared []template.SceneType
}

func (c *recordingClearer) ClearScene(_ context.Context, scene template.SceneType) (int, error) {
	c.cleared = append(c.cleared, scene)
	return 1, nil
}

func TestRecorder_RetakeDiscardsAndResets(t *testing.T) {
	clock := newFakeClock()
	clearer := &recordingClearer{}
	set := NewRecorderSet(clock, clearer)
	ctx := context.Background()

	set.Apply(ctx, template.SceneChase, "start")
	clock.Advance(45 * time.Second)
	if _, err := set.Apply(ctx, template.SceneChase, "stop"); err != nil {
		t.Fatalf("stop error = %v", err)
	}

	st, err := set.Apply(ctx, template.SceneChase, "retake")
	if err != nil {
		t.Fatalf("retake error = %v", err)
	}
	if st.State != StateIdle || st.Elapsed != 0 {
		t.Errorf("status after retake = %+v", st)
	}
	if len(clearer.cleared) != 1 || clearer.cleared[0] != template.SceneChase {
		t.Errorf("cleared = %v", clearer.cleared)
	}

	if _, err := set.Apply(ctx, template.SceneChase, "rewind"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("unknown action err = %v", err)
	}
}

type fakeUploader struct {
	mu    sync.Mutex
	calls []companion.SceneUpload
	fail  map[int]error // by camera angle
}

func (f *fakeUploader) UploadSceneVideo(_ context.Context, u companion.SceneUpload) error {
	f.mu.Lock()
	f.calls = append(f.calls, u)
	f.mu.Unlock()
	return f.fail[u.CameraAngle]
}

type staticLister []*VideoRecord

func (s staticLister) ListSession(context.Context) ([]*VideoRecord, error) {
	return s, nil
}

func threeTakes() staticLister {
	return staticLister{
		{ID: "a", SessionID: "anna", SceneType: template.SceneCruising, CameraAngle: 1, Duration: 40},
		{ID: "b", SessionID: "anna", SceneType: template.SceneCruising, CameraAngle: 2, Duration: 40},
		{ID: "c", SessionID: "anna", SceneType: template.SceneChase, CameraAngle: 1, Duration: 35},
	}
}

func TestUploadSession_PartialFailureFailsBatch(t *testing.T) {
	boom := errors.New("connection reset")
	up := &fakeUploader{fail: map[int]error{2: boom}}

	res, err := UploadSession(context.Background(), threeTakes(), up, "rec-1", nil)
	if err == nil {
		t.Fatal("2 of 3 uploads succeeding must fail the batch")
	}
	if res != nil {
		t.Errorf("result = %+v, want nil on failure", res)
	}

	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("err = %T, want *BatchError", err)
	}
	if batch.Total != 3 || len(batch.Failures) != 1 {
		t.Errorf("batch = %d total, %d failures", batch.Total, len(batch.Failures))
	}
	if !errors.Is(err, boom) {
		t.Error("batch error should wrap the upload error")
	}
	// every upload was still attempted
	if len(up.calls) != 3 {
		t.Errorf("calls = %d, want 3", len(up.calls))
	}
}

func TestUploadSession_AllSucceed(t *testing.T) {
	up := &fakeUploader{}
	res, err := UploadSession(context.Background(), threeTakes(), up, "rec-1", nil)
	if err != nil {
		t.Fatalf("UploadSession() error = %v", err)
	}
	if len(res.Uploaded) != 3 {
		t.Errorf("uploaded = %d", len(res.Uploaded))
	}
	for _, c := range up.calls {
		if c.RecordingID != "rec-1" || c.SessionID != "anna" {
			t.Errorf("call = %+v", c)
		}
	}
}

func TestUploadSession_Empty(t *testing.T) {
	_, err := UploadSession(context.Background(), staticLister{}, &fakeUploader{}, "rec-1", nil)
	if !errors.Is(err, ErrNothingToUpload) {
		t.Errorf("err = %v, want ErrNothingToUpload", err)
	}
}

func TestSelectCameras(t *testing.T) {
	devices := []media.Device{{ID: "0", Name: "Wing"}, {ID: "1", Name: "Cockpit"}, {ID: "2", Name: "Spare"}}

	tests := []struct {
		name    string
		avail   []media.Device
		wanted  []string
		want    []string
		wantErr error
	}{
		{"defaults to first two", devices, nil, []string{"0", "1"}, nil},
		{"wanted subset", devices, []string{"2"}, []string{"2"}, nil},
		{"one missing camera is fine", devices, []string{"1", "9"}, []string{"1"}, nil},
		{"none connected", nil, nil, nil, ErrNoCameras},
		{"none of the wanted", devices, []string{"7", "8"}, nil, ErrNoCameras},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectCameras(tt.avail, tt.wanted)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want ids %v", got, tt.want)
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("got[%d] = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}
