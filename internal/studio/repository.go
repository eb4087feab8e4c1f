package studio

import (
	"context"
	"database/sql"
	"time"

	"github.com/magnumstream/studio-agent/internal/db"
	"github.com/magnumstream/studio-agent/internal/template"
)

type Repository interface {
	// WithTx runs fn against a repository bound to a single transaction.
	WithTx(ctx context.Context, fn func(r Repository) error) error

	CreateRecording(ctx context.Context, rec *Recording) error
	GetRecording(ctx context.Context, id string) (*Recording, error)
	ListRecordings(ctx context.Context, limit int) ([]*Recording, error)
	UpdateRecording(ctx context.Context, rec *Recording) error

	CreateSceneRecording(ctx context.Context, s *SceneRecording) error
	GetSceneRecording(ctx context.Context, recordingID string, scene template.SceneType) (*SceneRecording, error)
	ListSceneRecordings(ctx context.Context, recordingID string) ([]*SceneRecording, error)
	UpdateSceneRecording(ctx context.Context, s *SceneRecording) error

	CreateVideoSlot(ctx context.Context, v *VideoSlot) error
	GetVideoSlot(ctx context.Context, recordingID string, slotNumber int) (*VideoSlot, error)
	ListVideoSlots(ctx context.Context, recordingID string) ([]*VideoSlot, error)
	UpdateSlotWindow(ctx context.Context, recordingID string, slotNumber int, windowStart float64) error

	CreateSale(ctx context.Context, s *Sale) error
	ListSales(ctx context.Context, recordingID string) ([]*Sale, error)

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	LatestJobForRecording(ctx context.Context, recordingID, jobType string) (*Job, error)
	UpdateJobStage(ctx context.Context, id, status string, stage Stage, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	SetJobOutput(ctx context.Context, id, outputPath string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type SQLiteRepository struct {
	conn *sql.DB
	q    querier
}

func NewRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{conn: conn, q: conn}
}

func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(r Repository) error) error {
	if _, inTx := r.q.(*sql.Tx); inTx {
		return fn(r)
	}
	return db.WithTx(ctx, r.conn, func(tx *sql.Tx) error {
		return fn(&SQLiteRepository{conn: r.conn, q: tx})
	})
}

const recordingColumns = `id, project_name, pilot_name, pilot_email, staff_member, flight_date, flight_time,
	session_id, export_status, drive_file_id, drive_folder_url, rendered_path, project_dir, sold, created_at, updated_at`

func (r *SQLiteRepository) CreateRecording(ctx context.Context, rec *Recording) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO recordings (`+recordingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ProjectName, rec.PilotName, nullString(rec.PilotEmail), nullString(rec.StaffMember),
		nullString(rec.FlightDate), nullString(rec.FlightTime), nullString(rec.SessionID), string(rec.ExportStatus),
		nullString(rec.DriveFileID), nullString(rec.DriveFolderURL), nullString(rec.RenderedPath), rec.ProjectDir,
		boolToInt(rec.Sold), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetRecording(ctx context.Context, id string) (*Recording, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (r *SQLiteRepository) ListRecordings(ctx context.Context, limit int) ([]*Recording, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *SQLiteRepository) UpdateRecording(ctx context.Context, rec *Recording) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE recordings SET project_name = ?, pilot_name = ?, pilot_email = ?, staff_member = ?,
			flight_date = ?, flight_time = ?, export_status = ?, drive_file_id = ?, drive_folder_url = ?,
			rendered_path = ?, sold = ?, updated_at = ?
		WHERE id = ?
	`, rec.ProjectName, rec.PilotName, nullString(rec.PilotEmail), nullString(rec.StaffMember),
		nullString(rec.FlightDate), nullString(rec.FlightTime), string(rec.ExportStatus),
		nullString(rec.DriveFileID), nullString(rec.DriveFolderURL), nullString(rec.RenderedPath),
		boolToInt(rec.Sold), formatTime(rec.UpdatedAt), rec.ID)
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecording(s scanner) (*Recording, error) {
	var rec Recording
	var email, staff, date, tm, session, driveFile, driveFolder, rendered sql.NullString
	var status string
	var sold int
	var createdAt, updatedAt string

	err := s.Scan(&rec.ID, &rec.ProjectName, &rec.PilotName, &email, &staff, &date, &tm,
		&session, &status, &driveFile, &driveFolder, &rendered, &rec.ProjectDir, &sold, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.PilotEmail = email.String
	rec.StaffMember = staff.String
	rec.FlightDate = date.String
	rec.FlightTime = tm.String
	rec.SessionID = session.String
	rec.ExportStatus = ExportStatus(status)
	rec.DriveFileID = driveFile.String
	rec.DriveFolderURL = driveFolder.String
	rec.RenderedPath = rendered.String
	rec.Sold = sold == 1
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

const sceneColumns = `id, recording_id, scene_type, scene_index, camera1_path, camera1_duration,
	camera2_path, camera2_duration, duration, created_at`

func (r *SQLiteRepository) CreateSceneRecording(ctx context.Context, s *SceneRecording) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO scene_recordings (`+sceneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.RecordingID, string(s.SceneType), s.SceneIndex, nullString(s.Camera1Path), s.Camera1Duration,
		nullString(s.Camera2Path), s.Camera2Duration, s.Duration, formatTime(s.CreatedAt))
	return err
}

func (r *SQLiteRepository) GetSceneRecording(ctx context.Context, recordingID string, scene template.SceneType) (*SceneRecording, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+sceneColumns+` FROM scene_recordings WHERE recording_id = ? AND scene_type = ?
	`, recordingID, string(scene))
	s, err := scanScene(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *SQLiteRepository) ListSceneRecordings(ctx context.Context, recordingID string) ([]*SceneRecording, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+sceneColumns+` FROM scene_recordings WHERE recording_id = ? ORDER BY scene_index
	`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []*SceneRecording
	for rows.Next() {
		s, err := scanScene(rows)
		if err != nil {
			return nil, err
		}
		scenes = append(scenes, s)
	}
	return scenes, rows.Err()
}

func (r *SQLiteRepository) UpdateSceneRecording(ctx context.Context, s *SceneRecording) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE scene_recordings SET camera1_path = ?, camera1_duration = ?, camera2_path = ?,
			camera2_duration = ?, duration = ?
		WHERE id = ?
	`, nullString(s.Camera1Path), s.Camera1Duration, nullString(s.Camera2Path), s.Camera2Duration, s.Duration, s.ID)
	return err
}

func scanScene(sc scanner) (*SceneRecording, error) {
	var s SceneRecording
	var sceneType, createdAt string
	var cam1, cam2 sql.NullString

	err := sc.Scan(&s.ID, &s.RecordingID, &sceneType, &s.SceneIndex, &cam1, &s.Camera1Duration,
		&cam2, &s.Camera2Duration, &s.Duration, &createdAt)
	if err != nil {
		return nil, err
	}
	s.SceneType = template.SceneType(sceneType)
	s.Camera1Path = cam1.String
	s.Camera2Path = cam2.String
	s.CreatedAt = parseTime(createdAt)
	return &s, nil
}

func (r *SQLiteRepository) CreateVideoSlot(ctx context.Context, v *VideoSlot) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO video_slots (id, recording_id, slot_number, scene_recording_id, camera_angle, window_start, slot_duration, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.RecordingID, v.SlotNumber, v.SceneRecordingID, v.CameraAngle, v.WindowStart, v.SlotDuration, formatTime(v.UpdatedAt))
	return err
}

const slotSelect = `
	SELECT v.id, v.recording_id, v.slot_number, v.scene_recording_id, s.scene_type, v.camera_angle,
		v.window_start, v.slot_duration, v.updated_at
	FROM video_slots v JOIN scene_recordings s ON s.id = v.scene_recording_id`

func (r *SQLiteRepository) GetVideoSlot(ctx context.Context, recordingID string, slotNumber int) (*VideoSlot, error) {
	row := r.q.QueryRowContext(ctx, slotSelect+` WHERE v.recording_id = ? AND v.slot_number = ?`, recordingID, slotNumber)
	v, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (r *SQLiteRepository) ListVideoSlots(ctx context.Context, recordingID string) ([]*VideoSlot, error) {
	rows, err := r.q.QueryContext(ctx, slotSelect+` WHERE v.recording_id = ? ORDER BY v.slot_number`, recordingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []*VideoSlot
	for rows.Next() {
		v, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, v)
	}
	return slots, rows.Err()
}

func (r *SQLiteRepository) UpdateSlotWindow(ctx context.Context, recordingID string, slotNumber int, windowStart float64) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE video_slots SET window_start = ?, updated_at = ? WHERE recording_id = ? AND slot_number = ?
	`, windowStart, formatTime(time.Now()), recordingID, slotNumber)
	return err
}

func scanSlot(sc scanner) (*VideoSlot, error) {
	var v VideoSlot
	var sceneType, updatedAt string
	err := sc.Scan(&v.ID, &v.RecordingID, &v.SlotNumber, &v.SceneRecordingID, &sceneType, &v.CameraAngle,
		&v.WindowStart, &v.SlotDuration, &updatedAt)
	if err != nil {
		return nil, err
	}
	v.SceneType = template.SceneType(sceneType)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}

func (r *SQLiteRepository) CreateSale(ctx context.Context, s *Sale) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO sales (id, recording_id, customer_name, customer_email, staff_member, bundle, amount_cents, drive_shared, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.RecordingID, s.CustomerName, nullString(s.CustomerEmail), nullString(s.StaffMember),
		s.Bundle, s.AmountCents, boolToInt(s.DriveShared), formatTime(s.CreatedAt))
	return err
}

func (r *SQLiteRepository) ListSales(ctx context.Context, recordingID string) ([]*Sale, error) {
	query := `SELECT id, recording_id, customer_name, customer_email, staff_member, bundle, amount_cents, drive_shared, created_at FROM sales`
	var args []interface{}
	if recordingID != "" {
		query += ` WHERE recording_id = ?`
		args = append(args, recordingID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*Sale
	for rows.Next() {
		var s Sale
		var email, staff sql.NullString
		var shared int
		var createdAt string
		if err := rows.Scan(&s.ID, &s.RecordingID, &s.CustomerName, &email, &staff, &s.Bundle, &s.AmountCents, &shared, &createdAt); err != nil {
			return nil, err
		}
		s.CustomerEmail = email.String
		s.StaffMember = staff.String
		s.DriveShared = shared == 1
		s.CreatedAt = parseTime(createdAt)
		sales = append(sales, &s)
	}
	return sales, rows.Err()
}

const jobColumns = `id, type, status, stage, recording_id, progress, error, output_path, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, string(j.Stage), nullString(j.RecordingID), j.Progress, nullString(j.Error),
		nullString(j.OutputPath), formatTime(j.CreatedAt), formatTime(j.UpdatedAt))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *SQLiteRepository) LatestJobForRecording(ctx context.Context, recordingID, jobType string) (*Job, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE recording_id = ? AND type = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, recordingID, jobType)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(sc scanner) (*Job, error) {
	var j Job
	var stage string
	var recordingID, errMsg, output sql.NullString
	var createdAt, updatedAt string

	err := sc.Scan(&j.ID, &j.Type, &j.Status, &stage, &recordingID, &j.Progress, &errMsg, &output, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	j.Stage = Stage(stage)
	j.RecordingID = recordingID.String
	j.Error = errMsg.String
	j.OutputPath = output.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) UpdateJobStage(ctx context.Context, id, status string, stage Stage, errorMsg string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE jobs SET status = ?, stage = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, string(stage), nullString(errorMsg), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) SetJobOutput(ctx context.Context, id, outputPath string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE jobs SET output_path = ?, updated_at = ? WHERE id = ?`,
		nullString(outputPath), formatTime(time.Now()), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.q.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *SQLiteRepository) DeleteConfig(ctx context.Context, key string) error {
	_, err := r.q.ExecContext(ctx, "DELETE FROM config WHERE key = ?", key)
	return err
}

// timeLayout has a fixed-width fraction so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
