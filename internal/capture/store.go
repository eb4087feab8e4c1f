// Package capture holds raw camera footage between recording and upload:
// an on-disk store scoped to the current session, the per-scene recorder
// state machine, and the batch upload to the clip companion.
package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/magnumstream/studio-agent/internal/template"
)

var ErrInvalidCamera = errors.New("camera angle must be 1 or 2")

// SessionSource yields the session that scopes every store operation.
type SessionSource interface {
	RequireSessionID(ctx context.Context) (string, error)
}

type VideoRecord struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"sessionId"`
	SceneType   template.SceneType `json:"sceneType"`
	CameraAngle int                `json:"cameraAngle"`
	Path        string             `json:"-"`
	Size        int64              `json:"size"`
	Duration    float64            `json:"duration"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// RecordID builds the key {sessionId}_{sceneType}_camera{n}_{unixMillis}.
func RecordID(sessionID string, scene template.SceneType, camera int, at time.Time) string {
	return fmt.Sprintf("%s_%s_camera%d_%d", sessionID, scene, camera, at.UnixMilli())
}

// VideoStore keeps every take on disk and indexes it in SQLite. Takes are
// never deduplicated; readers always get the newest one.
type VideoStore struct {
	conn     *sql.DB
	dir      string
	sessions SessionSource
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastTake time.Time
}

func NewVideoStore(conn *sql.DB, dir string, sessions SessionSource, logger *slog.Logger) *VideoStore {
	return &VideoStore{
		conn:     conn,
		dir:      dir,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// takeTime returns a creation time strictly after the previous take so
// record ids stay unique and newest-wins ordering is total.
func (s *VideoStore) takeTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().Truncate(time.Millisecond)
	if !t.After(s.lastTake) {
		t = s.lastTake.Add(time.Millisecond)
	}
	s.lastTake = t
	return t
}

// StoreVideo writes one take for the current session.
func (s *VideoStore) StoreVideo(ctx context.Context, scene template.SceneType, camera int, r io.Reader, duration float64, ext string) (*VideoRecord, error) {
	if !scene.Valid() {
		return nil, fmt.Errorf("unknown scene type %q", scene)
	}
	if camera != 1 && camera != 2 {
		return nil, ErrInvalidCamera
	}
	sessionID, err := s.sessions.RequireSessionID(ctx)
	if err != nil {
		return nil, err
	}
	if ext == "" {
		ext = ".webm"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	created := s.takeTime()
	rec := &VideoRecord{
		ID:          RecordID(sessionID, scene, camera, created),
		SessionID:   sessionID,
		SceneType:   scene,
		CameraAngle: camera,
		Duration:    duration,
		CreatedAt:   created,
	}

	sessionDir := filepath.Join(s.dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	rec.Path = filepath.Join(sessionDir, rec.ID+ext)

	size, err := writeAtomic(rec.Path, r)
	if err != nil {
		return nil, err
	}
	rec.Size = size

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO video_records (id, session_id, scene_type, camera_angle, path, size, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, string(rec.SceneType), rec.CameraAngle, rec.Path, rec.Size, rec.Duration, rec.CreatedAt.UnixMilli())
	if err != nil {
		os.Remove(rec.Path)
		return nil, fmt.Errorf("index video: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("video stored",
			"session_id", sessionID, "scene", scene, "camera", camera, "duration", duration, "bytes", size)
	}
	return rec, nil
}

func writeAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".take-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write video: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("finalise video: %w", err)
	}
	return n, nil
}

const recordColumns = `id, session_id, scene_type, camera_angle, path, size, duration, created_at`

// GetVideo returns the newest take for scene and camera in the current
// session, or nil when nothing was recorded yet.
func (s *VideoStore) GetVideo(ctx context.Context, scene template.SceneType, camera int) (*VideoRecord, error) {
	sessionID, err := s.sessions.RequireSessionID(ctx)
	if err != nil {
		return nil, err
	}
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM video_records
		WHERE session_id = ? AND scene_type = ? AND camera_angle = ?
		ORDER BY created_at DESC LIMIT 1
	`, sessionID, string(scene), camera)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// GetVideoDuration returns the duration of the newest take of the scene
// across both cameras. ok is false when the scene has no take.
func (s *VideoStore) GetVideoDuration(ctx context.Context, scene template.SceneType) (duration float64, ok bool, err error) {
	sessionID, err := s.sessions.RequireSessionID(ctx)
	if err != nil {
		return 0, false, err
	}
	err = s.conn.QueryRowContext(ctx, `
		SELECT duration FROM video_records
		WHERE session_id = ? AND scene_type = ?
		ORDER BY created_at DESC LIMIT 1
	`, sessionID, string(scene)).Scan(&duration)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return duration, true, nil
}

// ClearScene removes every take of the scene in the current session.
func (s *VideoStore) ClearScene(ctx context.Context, scene template.SceneType) (int, error) {
	sessionID, err := s.sessions.RequireSessionID(ctx)
	if err != nil {
		return 0, err
	}
	return s.deleteWhere(ctx, "session_id = ? AND scene_type = ?", sessionID, string(scene))
}

// ClearSession removes every take of a session.
func (s *VideoStore) ClearSession(ctx context.Context, sessionID string) (int, error) {
	n, err := s.deleteWhere(ctx, "session_id = ?", sessionID)
	if err != nil {
		return n, err
	}
	os.RemoveAll(filepath.Join(s.dir, sessionID))
	return n, nil
}

// PurgeOlderThan removes takes created before cutoff, whatever their session.
func (s *VideoStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	return s.deleteWhere(ctx, "created_at < ?", cutoff.UnixMilli())
}

func (s *VideoStore) deleteWhere(ctx context.Context, where string, args ...interface{}) (int, error) {
	recs, err := s.query(ctx, `SELECT `+recordColumns+` FROM video_records WHERE `+where, args...)
	if err != nil {
		return 0, err
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM video_records WHERE `+where, args...); err != nil {
		return 0, err
	}
	for _, rec := range recs {
		if err := os.Remove(rec.Path); err != nil && !os.IsNotExist(err) && s.logger != nil {
			s.logger.Warn("failed to remove take", "id", rec.ID, "error", err)
		}
	}
	return len(recs), nil
}

// ListSession returns the newest take per scene and camera of the current
// session, in scene then camera order.
func (s *VideoStore) ListSession(ctx context.Context) ([]*VideoRecord, error) {
	sessionID, err := s.sessions.RequireSessionID(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.query(ctx, `
		SELECT `+recordColumns+` FROM video_records
		WHERE session_id = ?
		ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}

	type key struct {
		scene  template.SceneType
		camera int
	}
	newest := make(map[key]*VideoRecord)
	for _, rec := range all {
		k := key{rec.SceneType, rec.CameraAngle}
		if _, seen := newest[k]; !seen {
			newest[k] = rec
		}
	}

	out := make([]*VideoRecord, 0, len(newest))
	for _, scene := range template.Scenes() {
		for _, cam := range []int{1, 2} {
			if rec, ok := newest[key{scene, cam}]; ok {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (s *VideoStore) query(ctx context.Context, q string, args ...interface{}) ([]*VideoRecord, error) {
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*VideoRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (*VideoRecord, error) {
	var rec VideoRecord
	var scene string
	var created int64
	if err := sc.Scan(&rec.ID, &rec.SessionID, &scene, &rec.CameraAngle, &rec.Path, &rec.Size, &rec.Duration, &created); err != nil {
		return nil, err
	}
	rec.SceneType = template.SceneType(scene)
	rec.CreatedAt = time.UnixMilli(created)
	return &rec, nil
}
