// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/reframedultimate/ReFramed-sub002/replay"
	"github.com/reframedultimate/ReFramed-sub002/replay/filename"
	"github.com/reframedultimate/ReFramed-sub002/session"
)

// Extensions are the file extensions of indexed replays.
var Extensions = []string{filename.Extension, ".json"}

// IsReplayPath returns true if path names a replay file to index. Hidden
// files, which include staged replays being written, are skipped.
func IsReplayPath(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return lo.Contains(Extensions, strings.ToLower(filepath.Ext(base)))
}

func dirPrefix(dir string) string {
	return strings.TrimSuffix(filepath.Clean(dir), string(filepath.Separator)) + string(filepath.Separator)
}

// ScanResult counts the outcome of a Scan.
type ScanResult struct {
	Added     int
	Updated   int
	Unchanged int
	Removed   int
	// Failed counts replays indexed with a load error.
	Failed int
}

// Scan indexes every replay below dir, and removes entries below dir whose
// files no longer exist. Replays whose size and modification time are
// unchanged are not reloaded.
func (ix *Index) Scan(ctx context.Context, dir string) (ScanResult, error) {
	var res ScanResult
	seen := make(map[string]struct{})

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsReplayPath(path) {
			return nil
		}
		seen[path] = struct{}{}

		info, err := d.Info()
		if err != nil {
			return errors.Wrapf(err, "stat %q", path)
		}
		prev, err := ix.Get(ctx, path)
		if err != nil {
			return err
		}
		if prev != nil && prev.Size == info.Size() && prev.ModTime.Equal(info.ModTime()) {
			res.Unchanged++
			return nil
		}

		e, err := ix.index(ctx, path, info)
		if err != nil {
			return err
		}
		if prev == nil {
			res.Added++
		} else {
			res.Updated++
		}
		if !e.Loaded() {
			res.Failed++
		}
		return nil
	})
	if err != nil {
		return res, errors.Wrapf(err, "scanning %q", dir)
	}

	existing, err := ix.List(ctx, Query{Dir: dir})
	if err != nil {
		return res, err
	}
	for _, e := range existing {
		if _, ok := seen[e.Path]; ok {
			continue
		}
		if err := ix.Remove(ctx, e.Path); err != nil {
			return res, err
		}
		res.Removed++
	}

	ix.logger().Infof("Scanned %q: %d added, %d updated, %d unchanged, %d removed, %d failed.",
		dir, res.Added, res.Updated, res.Unchanged, res.Removed, res.Failed)
	return res, nil
}

// Update indexes the replay at path, replacing any existing entry. A missing
// file removes its entry.
func (ix *Index) Update(ctx context.Context, path string) (*Entry, error) {
	info, err := os.Stat(path)
	switch {
	case os.IsNotExist(err):
		return nil, ix.Remove(ctx, path)
	case err != nil:
		return nil, errors.Wrapf(err, "stat %q", path)
	}
	return ix.index(ctx, path, info)
}

func (ix *Index) index(ctx context.Context, path string, info fs.FileInfo) (*Entry, error) {
	e := &Entry{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Winner:  session.NoWinner,
	}
	name := filename.FromFileName(filepath.Base(path))

	s, err := replay.LoadFile(path)
	if err != nil {
		ix.logger().Warnf("Indexing unloadable replay %q: %s", path, err)
		e.LoadError = err.Error()
		describe(e, &name)
	} else {
		meta := filename.FromMetaData(s.MappingInfo(), s.MetaData(), ix.Location)
		describe(e, &meta)
		summarize(e, s)
		e.Mismatches = CrossCheck(&name, &meta)
	}

	if err := ix.Put(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// describe fills the name-derived fields of e from p.
func describe(e *Entry, p *filename.Parts) {
	e.Event = p.Event.String()
	if p.Format.IsSet() {
		e.Format = p.Format.String()
		e.Round = p.Round.String()
	}
	e.Game = p.GameNumber
	e.Stage = p.Stage
	e.Players = lo.Map(p.Players, func(pl filename.Player, _ int) Player {
		return Player{Name: pl.Name, Fighter: pl.Fighter}
	})
}

// summarize fills the session-derived fields of e.
func summarize(e *Entry, s *session.Session) {
	mi, md := s.MappingInfo(), s.MetaData()
	e.Type = md.Type.String()
	e.Stage = mi.Stage.Name(md.Stage)
	e.Started = session.TimeFromMillis(md.TimeStarted)
	e.Winner = md.Winner
	e.Frames = s.FrameCount(0)
	e.Players = lo.Map(md.Players, func(pl session.Player, _ int) Player {
		return Player{
			Name:    lo.Ternary(pl.Name != "", pl.Name, pl.Tag),
			Fighter: mi.Fighter.Name(pl.Fighter),
		}
	})
}

// CrossCheck returns the fields that the file name name sets and that
// disagree with meta, the name the session would be given. Fields the file
// name leaves unset are never reported.
func CrossCheck(name, meta *filename.Parts) []string {
	type check struct {
		field string
		set   bool
		equal bool
	}
	checks := []check{
		{"date", name.Date != "", name.Date == meta.Date},
		{"time", name.Time != "", name.Time == meta.Time},
		{"event", name.Event.IsSet(), strings.EqualFold(name.Event.String(), meta.Event.String())},
		{"format", name.Format.IsSet(), strings.EqualFold(name.Format.String(), meta.Format.String())},
		{"round", name.Format.IsSet(), name.Round == meta.Round},
		{"players", len(name.Players) > 0, samePlayers(name.Players, meta.Players)},
		{"game", name.GameNumber > 0, name.GameNumber == meta.GameNumber},
		{"stage", name.Stage != "", strings.EqualFold(name.Stage, meta.Stage)},
	}
	return lo.FilterMap(checks, func(c check, _ int) (string, bool) {
		return c.field, c.set && !c.equal
	})
}

// samePlayers compares players by name, and by fighter where the file name
// names one.
func samePlayers(name, meta []filename.Player) bool {
	if len(name) != len(meta) {
		return false
	}
	for i := range name {
		if !strings.EqualFold(name[i].Name, meta[i].Name) {
			return false
		}
		if name[i].Fighter != "" && !strings.EqualFold(name[i].Fighter, meta[i].Fighter) {
			return false
		}
	}
	return true
}
