package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the sqlite-backed repository.
type DB struct {
	*sql.DB
}

// NewDB opens (and if necessary initialises) the lighting database.
// The inline schema covers a fresh file; versioned upgrades run through
// MigrateUp.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS songs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			artist      TEXT,
			duration    REAL,
			bpm         REAL,
			notes       TEXT,
			created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS song_reference_data (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			song_id        INTEGER NOT NULL,
			segment_index  INTEGER NOT NULL,
			timestamp      REAL NOT NULL,
			features       TEXT NOT NULL,
			FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE,
			UNIQUE(song_id, segment_index)
		);
		CREATE TABLE IF NOT EXISTS song_parts (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			song_id        INTEGER NOT NULL,
			part_name      TEXT NOT NULL,
			start_segment  INTEGER NOT NULL,
			end_segment    INTEGER NOT NULL,
			FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
		);
		CREATE TABLE IF NOT EXISTS light_programs (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			song_id        INTEGER NOT NULL,
			segment_index  INTEGER NOT NULL,
			universe       INTEGER NOT NULL,
			dmx_values     TEXT NOT NULL,
			FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE,
			UNIQUE(song_id, segment_index, universe)
		);
		CREATE TABLE IF NOT EXISTS manual_accents (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			description TEXT,
			dmx_values  TEXT NOT NULL,
			created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS show_setlists (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			description TEXT,
			songs_order TEXT NOT NULL,
			created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS capture_sessions (
			id           TEXT PRIMARY KEY,
			session_date TEXT NOT NULL,
			notes        TEXT,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_song_ref_song_id ON song_reference_data(song_id);
		CREATE INDEX IF NOT EXISTS idx_song_parts_song_id ON song_parts(song_id);
		CREATE INDEX IF NOT EXISTS idx_light_programs_song_id ON light_programs(song_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise schema: %w", err)
	}

	return &DB{db}, nil
}

// AddSong inserts a song and returns its id.
func (db *DB) AddSong(ctx context.Context, s Song) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO songs (name, artist, duration, bpm, notes) VALUES (?, ?, ?, ?, ?)`,
		s.Name, s.Artist, s.Duration, s.BPM, s.Notes)
	if err != nil {
		return 0, fmt.Errorf("add song %q: %w", s.Name, err)
	}
	return res.LastInsertId()
}

// GetAllSongs returns every song ordered by name.
func (db *DB) GetAllSongs(ctx context.Context) ([]Song, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, COALESCE(artist,''), COALESCE(duration,0), COALESCE(bpm,0), COALESCE(notes,'')
		 FROM songs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var songs []Song
	for rows.Next() {
		var s Song
		if err := rows.Scan(&s.ID, &s.Name, &s.Artist, &s.Duration, &s.BPM, &s.Notes); err != nil {
			return nil, err
		}
		songs = append(songs, s)
	}
	return songs, rows.Err()
}

// GetReferenceVectors returns the stored feature snapshots of a song
// ordered by segment index.
func (db *DB) GetReferenceVectors(ctx context.Context, songID int64) ([]ReferenceVector, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT song_id, segment_index, timestamp, features
		 FROM song_reference_data WHERE song_id = ? ORDER BY segment_index`, songID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReferenceVector
	for rows.Next() {
		var rv ReferenceVector
		var features string
		if err := rows.Scan(&rv.SongID, &rv.SegmentIndex, &rv.Timestamp, &features); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &rv.Features); err != nil {
			return nil, fmt.Errorf("song %d segment %d: corrupt features: %w", songID, rv.SegmentIndex, err)
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// AddReferenceVector upserts one segment's feature snapshot.
func (db *DB) AddReferenceVector(ctx context.Context, rv ReferenceVector) (int64, error) {
	features, err := json.Marshal(rv.Features)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO song_reference_data (song_id, segment_index, timestamp, features)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(song_id, segment_index) DO UPDATE SET timestamp=excluded.timestamp, features=excluded.features`,
		rv.SongID, rv.SegmentIndex, rv.Timestamp, string(features))
	if err != nil {
		return 0, fmt.Errorf("add reference vector song %d segment %d: %w", rv.SongID, rv.SegmentIndex, err)
	}
	return res.LastInsertId()
}

// AddSongPart stores a named segment range.
func (db *DB) AddSongPart(ctx context.Context, p SongPart) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO song_parts (song_id, part_name, start_segment, end_segment) VALUES (?, ?, ?, ?)`,
		p.SongID, p.PartName, p.StartSegment, p.EndSegment)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSongParts returns the named parts of a song ordered by start segment.
func (db *DB) GetSongParts(ctx context.Context, songID int64) ([]SongPart, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, song_id, part_name, start_segment, end_segment
		 FROM song_parts WHERE song_id = ? ORDER BY start_segment`, songID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SongPart
	for rows.Next() {
		var p SongPart
		if err := rows.Scan(&p.ID, &p.SongID, &p.PartName, &p.StartSegment, &p.EndSegment); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveCueFrame upserts the DMX values of one universe for a song segment.
func (db *DB) SaveCueFrame(ctx context.Context, songID int64, segmentIndex, universe int, channels []byte) error {
	values := make([]int, len(channels))
	for i, c := range channels {
		values[i] = int(c)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO light_programs (song_id, segment_index, universe, dmx_values)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(song_id, segment_index, universe) DO UPDATE SET dmx_values=excluded.dmx_values`,
		songID, segmentIndex, universe, string(data))
	return err
}

// GetCue returns the per-universe DMX arrays of a segment. A segment with
// no stored frames yields ErrNotFound.
func (db *DB) GetCue(ctx context.Context, songID int64, segmentIndex int) (map[int][]byte, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT universe, dmx_values FROM light_programs
		 WHERE song_id = ? AND segment_index = ?`, songID, segmentIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames := map[int][]byte{}
	for rows.Next() {
		var universe int
		var data string
		if err := rows.Scan(&universe, &data); err != nil {
			return nil, err
		}
		frame, err := decodeDmxJSON(data)
		if err != nil {
			return nil, fmt.Errorf("song %d segment %d universe %d: %w", songID, segmentIndex, universe, err)
		}
		frames[universe] = frame
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("cue for song %d segment %d: %w", songID, segmentIndex, ErrNotFound)
	}
	return frames, nil
}

// SaveAccent stores a named one-shot DMX look keyed by universe.
func (db *DB) SaveAccent(ctx context.Context, name, description string, frames map[int][]byte) error {
	byUniverse := map[int][]int{}
	for universe, channels := range frames {
		values := make([]int, len(channels))
		for i, c := range channels {
			values[i] = int(c)
		}
		byUniverse[universe] = values
	}
	data, err := json.Marshal(byUniverse)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO manual_accents (name, description, dmx_values) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET description=excluded.description, dmx_values=excluded.dmx_values`,
		name, description, string(data))
	return err
}

// GetAccent returns the frames of a named accent.
func (db *DB) GetAccent(ctx context.Context, name string) (map[int][]byte, error) {
	var data string
	err := db.QueryRowContext(ctx,
		`SELECT dmx_values FROM manual_accents WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("accent %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var byUniverse map[int][]int
	if err := json.Unmarshal([]byte(data), &byUniverse); err != nil {
		return nil, fmt.Errorf("accent %q: corrupt dmx values: %w", name, err)
	}
	frames := map[int][]byte{}
	for universe, values := range byUniverse {
		frames[universe] = clampBytes(values)
	}
	return frames, nil
}

// CreateSetlist stores an ordered song list for Show mode.
func (db *DB) CreateSetlist(ctx context.Context, name, description string, songIDs []int64) (int64, error) {
	order, err := json.Marshal(songIDs)
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO show_setlists (name, description, songs_order) VALUES (?, ?, ?)`,
		name, description, string(order))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetSetlist returns a setlist by id.
func (db *DB) GetSetlist(ctx context.Context, id int64) (*Setlist, error) {
	var sl Setlist
	var order string
	err := db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description,''), songs_order FROM show_setlists WHERE id = ?`, id).
		Scan(&sl.ID, &sl.Name, &sl.Description, &order)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("setlist %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(order), &sl.SongIDs); err != nil {
		return nil, fmt.Errorf("setlist %d: corrupt song order: %w", id, err)
	}
	return &sl, nil
}

// RecordCaptureSession stores a probe-mode capture session id and date.
func (db *DB) RecordCaptureSession(ctx context.Context, id string, sessionDate time.Time, notes string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO capture_sessions (id, session_date, notes) VALUES (?, ?, ?)`,
		id, sessionDate.Format("2006-01-02"), notes)
	return err
}

// decodeDmxJSON parses a JSON int array into DMX bytes, clamping each
// value into [0,255].
func decodeDmxJSON(data string) ([]byte, error) {
	var values []int
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}
	return clampBytes(values), nil
}

func clampBytes(values []int) []byte {
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}
