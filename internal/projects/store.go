// Package projects stores the user's project list in SQLite.
package projects

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound     = errors.New("project not found")
	ErrNameRequired = errors.New("project name is required")
	ErrPathRequired = errors.New("project path is required")
	ErrDuplicateID  = errors.New("duplicate project id")
)

// Project is one entry of the project list. AddedAt is in Unix milliseconds.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Path    string `json:"path"`
	AddedAt int64  `json:"added_at"`
}

// Store keeps the ordered project list in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("projects db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			added_at INTEGER NOT NULL,
			position INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_projects_position ON projects(position);",
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// List returns all projects in display order.
func (s *Store) List() ([]Project, error) {
	rows, err := s.db.Query(`SELECT id, name, path, added_at FROM projects ORDER BY position, added_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Project, 0)
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &p.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Save replaces the whole list in one transaction, keeping the given order.
// Missing IDs and timestamps are filled in; the stored list is returned.
func (s *Store) Save(list []Project) ([]Project, error) {
	saved := make([]Project, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, p := range list {
		p, err := s.normalize(p)
		if err != nil {
			return nil, err
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
		}
		seen[p.ID] = true
		saved = append(saved, p)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM projects`); err != nil {
		return nil, err
	}
	for i, p := range saved {
		if _, err := tx.Exec(`INSERT INTO projects (id, name, path, added_at, position) VALUES (?, ?, ?, ?, ?)`,
			p.ID, p.Name, p.Path, p.AddedAt, i,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return saved, nil
}

// Add appends a project to the end of the list.
func (s *Store) Add(name, path string) (Project, error) {
	p, err := s.normalize(Project{Name: name, Path: path})
	if err != nil {
		return Project{}, err
	}

	_, err = s.db.Exec(`INSERT INTO projects (id, name, path, added_at, position)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM projects))`,
		p.ID, p.Name, p.Path, p.AddedAt,
	)
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

// Remove deletes a project. It returns ErrNotFound for unknown IDs.
func (s *Store) Remove(id string) error {
	res, err := s.db.Exec(`DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) normalize(p Project) (Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Path = strings.TrimSpace(p.Path)
	p.ID = strings.TrimSpace(p.ID)
	if p.Name == "" {
		return p, ErrNameRequired
	}
	if p.Path == "" {
		return p, ErrPathRequired
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.AddedAt == 0 {
		p.AddedAt = s.now().UnixMilli()
	}
	return p, nil
}
