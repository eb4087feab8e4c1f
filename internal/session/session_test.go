package session

import (
	"context"
	"errors"
	"testing"

	"github.com/magnumstream/studio-agent/internal/template"
)

type memStore struct {
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (m *memStore) GetConfig(_ context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memStore) SetConfig(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memStore) DeleteConfig(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func TestSlug(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{[]string{"Anna Smith"}, "anna_smith"},
		{[]string{"Anna", "Ben"}, "anna_ben"},
		{[]string{"  O'Neil -- Family!! "}, "o_neil_family"},
		{[]string{"Flight 42"}, "flight_42"},
		{[]string{""}, "session"},
		{nil, "session"},
		{[]string{"***"}, "session"},
	}
	for _, tt := range tests {
		if got := Slug(tt.names...); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.names, got, tt.want)
		}
	}
}

func TestSetCurrentSession_SwitchClearsPreviousFlags(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sc := New(store)

	if _, err := sc.SetCurrentSession(ctx, []string{"Anna"}, false); err != nil {
		t.Fatalf("SetCurrentSession() error = %v", err)
	}
	if err := sc.MarkSceneCompleted(ctx, template.SceneCruising); err != nil {
		t.Fatalf("MarkSceneCompleted() error = %v", err)
	}

	id, err := sc.SetCurrentSession(ctx, []string{"Ben"}, false)
	if err != nil {
		t.Fatalf("SetCurrentSession() error = %v", err)
	}
	if id != "ben" {
		t.Errorf("session id = %q, want ben", id)
	}
	if _, ok := store.values["scene_completed_anna_cruising"]; ok {
		t.Error("previous session flag survived a session switch")
	}
}

func TestSetCurrentSession_SameSessionKeepsFlags(t *testing.T) {
	ctx := context.Background()
	sc := New(newMemStore())

	sc.SetCurrentSession(ctx, []string{"Anna"}, false)
	sc.MarkSceneCompleted(ctx, template.SceneChase)
	sc.SetCurrentSession(ctx, []string{"anna"}, false)

	done, err := sc.IsSceneCompleted(ctx, template.SceneChase)
	if err != nil {
		t.Fatalf("IsSceneCompleted() error = %v", err)
	}
	if !done {
		t.Error("re-entering the same session lost its completion flag")
	}
}

func TestSetCurrentSession_NewProjectCollision(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sc := New(store)

	sc.SetCurrentSession(ctx, []string{"Anna Smith"}, true)
	sc.MarkSceneCompleted(ctx, template.SceneCruising)
	sc.MarkSceneCompleted(ctx, template.SceneArrival)
	sc.SetRecordingID(ctx, "rec-1")

	// a different customer with the same name starts a new project
	id, err := sc.SetCurrentSession(ctx, []string{"anna  smith"}, true)
	if err != nil {
		t.Fatalf("SetCurrentSession() error = %v", err)
	}
	if id != "anna_smith" {
		t.Fatalf("session id = %q, want anna_smith", id)
	}

	snap, err := sc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.CompletedScenes) != 0 {
		t.Errorf("completed scenes = %v, want none", snap.CompletedScenes)
	}
	if snap.RecordingID != "" {
		t.Errorf("recording id = %q, want cleared", snap.RecordingID)
	}
}

func TestSetCurrentSession_ClearsOnlyItsOwnFlags(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.values["scene_completed_anna_smith_cruising"] = "true"
	sc := New(store)

	// new project for anna
	sc.SetCurrentSession(ctx, []string{"Anna"}, true)
	if store.values["scene_completed_anna_smith_cruising"] != "true" {
		t.Error("clearing session anna removed flags of anna_smith")
	}

	// switching away from anna drops anna's flags only
	sc.MarkSceneCompleted(ctx, template.SceneChase)
	sc.SetCurrentSession(ctx, []string{"Kai"}, false)
	if _, ok := store.values["scene_completed_anna_chase"]; ok {
		t.Error("previous session flag survived the switch")
	}
	if store.values["scene_completed_anna_smith_cruising"] != "true" {
		t.Error("switching away from anna removed flags of anna_smith")
	}
}

func TestMarkSceneCompleted_RequiresSession(t *testing.T) {
	sc := New(newMemStore())
	err := sc.MarkSceneCompleted(context.Background(), template.SceneChase)
	if !errors.Is(err, ErrNoSession) {
		t.Errorf("err = %v, want ErrNoSession", err)
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	sc := New(newMemStore())

	sc.SetCurrentSession(ctx, []string{"Kai"}, true)
	sc.SetRecordingID(ctx, "rec-9")
	sc.SetPilotEmail(ctx, " kai@example.com ")
	sc.SetStaffMember(ctx, "Leilani")
	sc.MarkSceneCompleted(ctx, template.SceneChase)

	snap, err := sc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.SessionID != "kai" || snap.RecordingID != "rec-9" {
		t.Errorf("snapshot ids = %q/%q", snap.SessionID, snap.RecordingID)
	}
	if snap.PilotEmail != "kai@example.com" || snap.StaffMember != "Leilani" {
		t.Errorf("snapshot people = %q/%q", snap.PilotEmail, snap.StaffMember)
	}
	if len(snap.CompletedScenes) != 1 || snap.CompletedScenes[0] != template.SceneChase {
		t.Errorf("completed = %v, want [chase]", snap.CompletedScenes)
	}

	sc.SetPilotEmail(ctx, "")
	snap, _ = sc.Snapshot(ctx)
	if snap.PilotEmail != "" {
		t.Error("empty email should clear the stored value")
	}
}
