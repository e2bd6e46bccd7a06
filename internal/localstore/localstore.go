// Package localstore persists the client's own state: the set of joined
// rooms (code → display name) and the single local profile. It is plain
// key-value data in a SQLite file; remote history is never stored here.
package localstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/XSAM/otelsql"
	_ "github.com/mattn/go-sqlite3"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var (
	// ErrNameRequired is returned by SaveProfile when the display name is
	// empty. The name is mandatory; everything else has defaults.
	ErrNameRequired = errors.New("display name is required")

	// ErrUnknownRoom is returned when renaming a room that was never joined.
	ErrUnknownRoom = errors.New("unknown room")

	roomCodeRe = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{0,63}$`)
)

// Room is a joined room as shown in the sidebar list.
type Room struct {
	ID          string
	DisplayName string
}

// Profile is the local user's identity card.
type Profile struct {
	UserID    string
	Name      string
	AvatarRef string
	Bio       string
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS profile (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	user_id    TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	avatar_ref TEXT NOT NULL DEFAULT '',
	bio        TEXT NOT NULL DEFAULT ''
);
`

// Store is the local persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := otelsql.Open("sqlite3", path,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init local store schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Rooms lists the joined rooms ordered by display name.
func (s *Store) Rooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name FROM rooms ORDER BY display_name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.DisplayName); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// AddRoom records a joined room. Joining a room that is already in the
// list keeps the existing display name.
func (s *Store) AddRoom(ctx context.Context, id, displayName string) error {
	if !roomCodeRe.MatchString(id) {
		return fmt.Errorf("invalid room code %q", id)
	}
	if displayName == "" {
		displayName = id
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, display_name) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`, id, displayName)
	return err
}

// RenameRoom changes the local display name; the room code never changes.
func (s *Store) RenameRoom(ctx context.Context, id, displayName string) error {
	if displayName == "" {
		return ErrNameRequired
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET display_name = ? WHERE id = ?`, displayName, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUnknownRoom
	}
	return nil
}

// RemoveRoom hides the room from the local list. The remote history is
// untouched; rejoining with the same code brings it back.
func (s *Store) RemoveRoom(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	return err
}

// Profile returns the saved profile, or sensible defaults when none has
// been saved yet.
func (s *Store) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, avatar_ref, bio FROM profile WHERE id = 1`).
		Scan(&p.UserID, &p.Name, &p.AvatarRef, &p.Bio)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{Name: "Anonymous", Bio: "Available"}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// SaveProfile stores the profile. The display name is mandatory.
func (s *Store) SaveProfile(ctx context.Context, p Profile) error {
	if p.Name == "" {
		return ErrNameRequired
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile (id, user_id, name, avatar_ref, bio)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			avatar_ref = excluded.avatar_ref,
			bio = excluded.bio`,
		p.UserID, p.Name, p.AvatarRef, p.Bio)
	return err
}

const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateRoomCode returns a fresh shareable room code like "ROOM-7KQ2MX".
// The alphabet skips easily-confused characters.
func GenerateRoomCode() string {
	buf := make([]byte, 6)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return "ROOM-" + string(buf)
}
