// Package session owns the working identity of one customer's
// capture-to-export journey. All session state lives in a single Context
// persisted through a key/value Store, so every component reads the same
// current session, recording reference and completion flags.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/magnumstream/studio-agent/internal/template"
)

const (
	KeySessionID   = "currentSessionId"
	KeyRecordingID = "currentRecordingId"
	KeyPilotEmail  = "pilotEmail"
	KeyStaffMember = "staffMember"

	completedPrefix = "scene_completed_"
	defaultSlug     = "session"
)

// Store is the persistence the context writes through. The studio
// repository's config table satisfies it.
type Store interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}

type Snapshot struct {
	SessionID       string               `json:"sessionId"`
	RecordingID     string               `json:"recordingId,omitempty"`
	PilotEmail      string               `json:"pilotEmail,omitempty"`
	StaffMember     string               `json:"staffMember,omitempty"`
	CompletedScenes []template.SceneType `json:"completedScenes"`
}

type Context struct {
	mu    sync.Mutex
	store Store
}

func New(store Store) *Context {
	return &Context{store: store}
}

// Slug derives a session id from customer names: lower case, runs of
// anything but letters and digits collapsed to one underscore.
func Slug(names ...string) string {
	var b strings.Builder
	pendingSep := false
	for _, name := range names {
		for _, r := range strings.ToLower(name) {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				if pendingSep && b.Len() > 0 {
					b.WriteByte('_')
				}
				pendingSep = false
				b.WriteRune(r)
				continue
			}
			pendingSep = true
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return defaultSlug
	}
	return b.String()
}

func completedKey(sessionID string, scene template.SceneType) string {
	return completedPrefix + sessionID + "_" + string(scene)
}

// clearCompleted removes the completion flag of every scene in sessionID.
// Keys are deleted one by one since slugs may share a prefix.
func (c *Context) clearCompleted(ctx context.Context, sessionID string) error {
	for _, scene := range template.Scenes() {
		if err := c.store.DeleteConfig(ctx, completedKey(sessionID, scene)); err != nil {
			return err
		}
	}
	return nil
}

// SetCurrentSession switches to the session derived from names. Completion
// flags of the previous session are dropped when the id changes. A new
// project also starts from clean flags and forgets the server recording,
// even when its id collides with an earlier session.
func (c *Context) SetCurrentSession(ctx context.Context, names []string, isNewProject bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := Slug(names...)
	prev, err := c.store.GetConfig(ctx, KeySessionID)
	if err != nil {
		return "", fmt.Errorf("read current session: %w", err)
	}

	if prev != "" && prev != id {
		if err := c.clearCompleted(ctx, prev); err != nil {
			return "", fmt.Errorf("clear previous session flags: %w", err)
		}
	}
	if isNewProject {
		if err := c.clearCompleted(ctx, id); err != nil {
			return "", fmt.Errorf("clear session flags: %w", err)
		}
		if err := c.store.DeleteConfig(ctx, KeyRecordingID); err != nil {
			return "", fmt.Errorf("clear recording reference: %w", err)
		}
	}

	if err := c.store.SetConfig(ctx, KeySessionID, id); err != nil {
		return "", fmt.Errorf("persist session: %w", err)
	}
	return id, nil
}

// SessionID returns the current session, or "" before one was started.
func (c *Context) SessionID(ctx context.Context) (string, error) {
	return c.store.GetConfig(ctx, KeySessionID)
}

// RequireSessionID is SessionID for callers that cannot work without one.
func (c *Context) RequireSessionID(ctx context.Context) (string, error) {
	id, err := c.SessionID(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

func (c *Context) MarkSceneCompleted(ctx context.Context, scene template.SceneType) error {
	id, err := c.RequireSessionID(ctx)
	if err != nil {
		return err
	}
	return c.store.SetConfig(ctx, completedKey(id, scene), "true")
}

func (c *Context) IsSceneCompleted(ctx context.Context, scene template.SceneType) (bool, error) {
	id, err := c.SessionID(ctx)
	if err != nil || id == "" {
		return false, err
	}
	v, err := c.store.GetConfig(ctx, completedKey(id, scene))
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (c *Context) SetRecordingID(ctx context.Context, recordingID string) error {
	return c.setOrClear(ctx, KeyRecordingID, recordingID)
}

func (c *Context) SetPilotEmail(ctx context.Context, email string) error {
	return c.setOrClear(ctx, KeyPilotEmail, strings.TrimSpace(email))
}

func (c *Context) SetStaffMember(ctx context.Context, name string) error {
	return c.setOrClear(ctx, KeyStaffMember, strings.TrimSpace(name))
}

func (c *Context) setOrClear(ctx context.Context, key, value string) error {
	if value == "" {
		return c.store.DeleteConfig(ctx, key)
	}
	return c.store.SetConfig(ctx, key, value)
}

func (c *Context) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{CompletedScenes: []template.SceneType{}}
	for key, dst := range map[string]*string{
		KeySessionID:   &snap.SessionID,
		KeyRecordingID: &snap.RecordingID,
		KeyPilotEmail:  &snap.PilotEmail,
		KeyStaffMember: &snap.StaffMember,
	} {
		v, err := c.store.GetConfig(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		*dst = v
	}

	if snap.SessionID == "" {
		return snap, nil
	}
	for _, scene := range template.Scenes() {
		v, err := c.store.GetConfig(ctx, completedKey(snap.SessionID, scene))
		if err != nil {
			return nil, err
		}
		if v == "true" {
			snap.CompletedScenes = append(snap.CompletedScenes, scene)
		}
	}
	return snap, nil
}
