// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package library maintains a searchable index of a directory of replays.
//
// Each indexed replay records its file attributes, a summary of its session
// and the fields that its file name claims but its metadata contradicts.
// Replays that cannot be loaded are indexed with their load error, so that a
// rescan does not retry them until they change.
package library

import (
	"context"
	"database/sql"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/reframedultimate/ReFramed-sub002/support/logging"
)

// Player is an indexed session participant.
type Player struct {
	Name    string `json:"name"`
	Fighter string `json:"fighter,omitempty"`
}

// Entry is one indexed replay.
type Entry struct {
	// ID is the entry's stable identifier. It survives reindexing.
	ID      string
	Path    string
	Size    int64
	ModTime time.Time

	// Type is "game" or "training", or empty if the replay could not be
	// loaded.
	Type    string
	Stage   string
	Started time.Time
	Players []Player
	Frames  int
	Winner  int

	Event  string
	Format string
	Round  string
	Game   int

	// Mismatches names the file name fields that disagree with the session.
	Mismatches []string
	// LoadError is the reason the replay could not be loaded, if any.
	LoadError string
}

// Loaded returns true if e's replay could be loaded.
func (e *Entry) Loaded() bool { return e.LoadError == "" }

const schema = `
CREATE TABLE IF NOT EXISTS replays (
	id          TEXT PRIMARY KEY,
	path        TEXT NOT NULL UNIQUE,
	size        INTEGER NOT NULL,
	mod_time    INTEGER NOT NULL,
	type        TEXT NOT NULL,
	stage       TEXT NOT NULL,
	started     INTEGER NOT NULL,
	players     TEXT NOT NULL,
	frames      INTEGER NOT NULL,
	winner      INTEGER NOT NULL,
	event       TEXT NOT NULL,
	format      TEXT NOT NULL,
	round       TEXT NOT NULL,
	game        INTEGER NOT NULL,
	mismatches  TEXT NOT NULL,
	load_error  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS replays_started ON replays (started);
CREATE INDEX IF NOT EXISTS replays_stage ON replays (stage);
`

const columns = `id, path, size, mod_time, type, stage, started, players, frames, winner,
	event, format, round, game, mismatches, load_error`

// Index is a replay index backed by a sqlite database.
//
// Index is safe for concurrent use.
type Index struct {
	// Logger, if not nil, is the logger to use.
	Logger logging.L

	// Location is the time zone that session file names are expected in. If
	// nil, the local time zone is used.
	Location *time.Location

	db *sql.DB
}

func (ix *Index) logger() logging.L { return logging.Must(ix.Logger) }

// Open opens the index database at path, creating it if needed. The path
// ":memory:" opens a private in-memory index.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening index %q", path)
	}
	// Every connection to ":memory:" is its own database, and sqlite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating index schema")
	}
	return &Index{db: db}, nil
}

// Close closes the index database.
func (ix *Index) Close() error { return ix.db.Close() }

// Put adds or replaces the entry for e.Path. A replaced entry keeps its ID;
// a new entry is given one if e.ID is empty.
func (ix *Index) Put(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	players, err := json.Marshal(e.Players)
	if err != nil {
		return errors.Wrap(err, "encoding players")
	}
	mismatches, err := json.Marshal(lo.Ternary(e.Mismatches == nil, []string{}, e.Mismatches))
	if err != nil {
		return errors.Wrap(err, "encoding mismatches")
	}

	_, err = ix.db.ExecContext(ctx, `
		INSERT INTO replays (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			size = excluded.size,
			mod_time = excluded.mod_time,
			type = excluded.type,
			stage = excluded.stage,
			started = excluded.started,
			players = excluded.players,
			frames = excluded.frames,
			winner = excluded.winner,
			event = excluded.event,
			format = excluded.format,
			round = excluded.round,
			game = excluded.game,
			mismatches = excluded.mismatches,
			load_error = excluded.load_error`,
		e.ID, e.Path, e.Size, e.ModTime.UnixNano(), e.Type, e.Stage, e.Started.UnixMilli(),
		string(players), e.Frames, e.Winner, e.Event, e.Format, e.Round, e.Game,
		string(mismatches), e.LoadError)
	if err != nil {
		return errors.Wrapf(err, "indexing %q", e.Path)
	}

	// Report the surviving ID.
	return errors.Wrap(ix.db.QueryRowContext(ctx, `SELECT id FROM replays WHERE path = ?`, e.Path).Scan(&e.ID),
		"reading entry ID")
}

// Get returns the entry for path, or nil if there is none.
func (ix *Index) Get(ctx context.Context, path string) (*Entry, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT `+columns+` FROM replays WHERE path = ?`, path)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %q", path)
	}
	entries, err := scanEntries(rows)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

// Remove removes the entry for path. Removing a missing entry is not an
// error.
func (ix *Index) Remove(ctx context.Context, path string) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM replays WHERE path = ?`, path)
	return errors.Wrapf(err, "removing %q", path)
}

// Query filters List results. Empty fields match everything.
type Query struct {
	// Dir restricts results to replays below this directory.
	Dir string
	// Type is "game" or "training".
	Type  string
	Stage string
	// Player matches a player by name, ignoring case.
	Player string
	// Fighter matches a player by fighter name, ignoring case.
	Fighter string
	// Mismatched restricts results to replays whose file names disagree with
	// their sessions.
	Mismatched bool
	// Failed restricts results to replays that could not be loaded.
	Failed bool
}

// List returns the entries matching q, oldest session first.
func (ix *Index) List(ctx context.Context, q Query) ([]*Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg ...interface{}) {
		where = append(where, clause)
		args = append(args, arg...)
	}
	if q.Dir != "" {
		add(`instr(path, ?) = 1`, dirPrefix(q.Dir))
	}
	if q.Type != "" {
		add(`type = ? COLLATE NOCASE`, q.Type)
	}
	if q.Stage != "" {
		add(`stage = ? COLLATE NOCASE`, q.Stage)
	}
	if q.Mismatched {
		add(`mismatches <> '[]'`)
	}
	if q.Failed {
		add(`load_error <> ''`)
	}

	stmt := `SELECT ` + columns + ` FROM replays`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, ` AND `)
	}
	stmt += ` ORDER BY started, path`

	rows, err := ix.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing replays")
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	// Player fields live in a JSON column.
	if q.Player != "" || q.Fighter != "" {
		entries = lo.Filter(entries, func(e *Entry, _ int) bool {
			return lo.ContainsBy(e.Players, func(p Player) bool {
				return (q.Player == "" || strings.EqualFold(p.Name, q.Player)) &&
					(q.Fighter == "" || strings.EqualFold(p.Fighter, q.Fighter))
			})
		})
	}
	return entries, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                   Entry
			modTime, started    int64
			players, mismatches string
		)
		err := rows.Scan(&e.ID, &e.Path, &e.Size, &modTime, &e.Type, &e.Stage, &started, &players,
			&e.Frames, &e.Winner, &e.Event, &e.Format, &e.Round, &e.Game, &mismatches, &e.LoadError)
		if err != nil {
			return nil, errors.Wrap(err, "reading entry")
		}
		e.ModTime = time.Unix(0, modTime)
		e.Started = time.UnixMilli(started)
		if err := json.Unmarshal([]byte(players), &e.Players); err != nil {
			return nil, errors.Wrapf(err, "decoding players of %q", e.Path)
		}
		if err := json.Unmarshal([]byte(mismatches), &e.Mismatches); err != nil {
			return nil, errors.Wrapf(err, "decoding mismatches of %q", e.Path)
		}
		if len(e.Mismatches) == 0 {
			e.Mismatches = nil
		}
		entries = append(entries, &e)
	}
	return entries, errors.Wrap(rows.Err(), "listing entries")
}
