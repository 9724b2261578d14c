// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rfcore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/reframedultimate/ReFramed-sub002/replay"
	"github.com/reframedultimate/ReFramed-sub002/replay/compression"
	"github.com/reframedultimate/ReFramed-sub002/replay/filename"
	"github.com/reframedultimate/ReFramed-sub002/replay/rfr"
	"github.com/reframedultimate/ReFramed-sub002/replay/savefile"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/fmtutil"
	"github.com/reframedultimate/ReFramed-sub002/support/stagingdir"
)

type playerSummary struct {
	Tag     string `json:"tag"`
	Name    string `json:"name"`
	Sponsor string `json:"sponsor,omitempty"`
	Fighter string `json:"fighter"`
}

// replaySummary describes one replay file.
type replaySummary struct {
	Path string `json:"path"`
	// Container is "rfr", or the compression of a JSON document.
	Container string `json:"container"`
	Version   string `json:"version,omitempty"`

	Type     string          `json:"type"`
	Stage    string          `json:"stage"`
	Started  time.Time       `json:"started"`
	Frames   int             `json:"frames"`
	Duration string          `json:"duration"`
	Players  []playerSummary `json:"players"`
	Winner   string          `json:"winner,omitempty"`

	// FileName is the name the session would be saved as.
	FileName string `json:"file_name"`
}

func summarizeFile(path string, loc *time.Location) (*replaySummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sum := replaySummary{Path: path, Container: "rfr"}
	if !rfr.IsContainer(data) {
		doc, c, err := compression.Resolve(data)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q", path)
		}
		sum.Container = c.String()
		if v, err := savefile.DetectVersion(doc); err == nil {
			sum.Version = v.String()
		}
	}

	s, err := replay.Load(data)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", path)
	}
	mi, md := s.MappingInfo(), s.MetaData()

	sum.Type = md.Type.String()
	sum.Stage = mi.Stage.Name(md.Stage)
	sum.Started = session.TimeFromMillis(md.TimeStarted)
	sum.Frames = s.FrameCount(0)
	sum.Duration = fmtutil.FrameTime(sum.Frames).String()
	sum.Players = lo.Map(md.Players, func(p session.Player, _ int) playerSummary {
		return playerSummary{Tag: p.Tag, Name: p.Name, Sponsor: p.Sponsor, Fighter: mi.Fighter.Name(p.Fighter)}
	})
	if md.Winner >= 0 && md.Winner < len(md.Players) {
		sum.Winner = md.Players[md.Winner].Name
	}
	name := filename.FromMetaData(mi, md, loc)
	sum.FileName = name.ToFileName()
	return &sum, nil
}

func (sum *replaySummary) write(w io.Writer) {
	fmt.Fprintf(w, "%s\n", sum.Path)
	fmt.Fprintf(w, "  container: %s", sum.Container)
	if sum.Version != "" {
		fmt.Fprintf(w, " (version %s)", sum.Version)
	}
	fmt.Fprintf(w, "\n  %s on %s, started %s\n", sum.Type, sum.Stage, sum.Started.Format(time.RFC3339))
	fmt.Fprintf(w, "  %d frames (%s)\n", sum.Frames, sum.Duration)
	for i, p := range sum.Players {
		fmt.Fprintf(w, "  player %d: %s (%s)\n", i+1, p.Name, p.Fighter)
	}
	if sum.Winner != "" {
		fmt.Fprintf(w, "  winner: %s\n", sum.Winner)
	}
	fmt.Fprintf(w, "  saves as: %s\n", sum.FileName)
}

func (a *app) inspectCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect FILE...",
		Short: "Summarize replay files.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}

			var sums []*replaySummary
			for _, path := range args {
				sum, err := summarizeFile(path, loc)
				if err != nil {
					return err
				}
				sums = append(sums, sum)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, sums)
			}
			for _, sum := range sums {
				sum.write(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print summaries as JSON.")
	return cmd
}

func (a *app) convertCommand() *cobra.Command {
	var (
		version string
		level   int
	)
	cmd := &cobra.Command{
		Use:   "convert SRC DST",
		Short: "Rewrite a replay in the configured format and compression.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.cfg.SaveOptions()
			if err != nil {
				return err
			}
			if opts.Version, err = savefile.ParseVersion(version); err != nil {
				return err
			}
			opts.Level = level

			s, err := replay.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := replay.SaveFile(args[1], s, opts); err != nil {
				return err
			}
			a.logger.Infof("Converted %q to %q (%s).", args[0], args[1], opts.Format)
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", savefile.Latest.String(),
		"Schema version of JSON output: "+versionNames()+".")
	cmd.Flags().IntVar(&level, "level", 0, "Compression level. If 0, the default level is used.")
	return cmd
}

const upgradeLong = `Upgrade JSON replays in place to a newer schema version.

Each file keeps its compression unless --recompress is given. Containers are
skipped.`

func (a *app) upgradeCommand() *cobra.Command {
	var (
		version    string
		recompress compression.Flag
	)
	cmd := &cobra.Command{
		Use:   "upgrade FILE...",
		Short: "Upgrade JSON replays in place to a newer schema version.",
		Long:  upgradeLong,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := savefile.ParseVersion(version)
			if err != nil {
				return err
			}
			for _, path := range args {
				var override *compression.Compression
				if cmd.Flags().Changed("recompress") {
					c := recompress.Value()
					override = &c
				}
				if err := a.upgradeFile(path, to, override); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", savefile.Latest.String(),
		"Schema version to upgrade to: "+versionNames()+".")
	cmd.Flags().Var(&recompress, "recompress", "Rewrite with this compression: "+compression.FlagValues()+".")
	return cmd
}

func (a *app) upgradeFile(path string, to savefile.Version, override *compression.Compression) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if rfr.IsContainer(data) {
		a.logger.Infof("Skipping container %q.", path)
		return nil
	}

	doc, c, err := compression.Resolve(data)
	if err != nil {
		return errors.Wrapf(err, "reading %q", path)
	}
	from, err := savefile.DetectVersion(doc)
	if err != nil {
		return errors.Wrapf(err, "reading %q", path)
	}
	if from == to && override == nil {
		a.logger.Debugf("Replay %q is already version %s.", path, to)
		return nil
	}

	upgraded, err := savefile.Upgrade(doc, to)
	if err != nil {
		return errors.Wrapf(err, "upgrading %q", path)
	}
	if override != nil {
		c = *override
	}
	var buf bytes.Buffer
	if err := compression.Compress(&buf, c, upgraded, compression.DefaultLevel); err != nil {
		return errors.Wrapf(err, "compressing %q", path)
	}
	if err := stagingdir.WriteFile(path, buf.Bytes()); err != nil {
		return err
	}
	a.logger.Infof("Upgraded %q from %s to %s (%s).", path, from, to, c)
	return nil
}

type nameView struct {
	Date        string            `json:"date,omitempty"`
	Time        string            `json:"time,omitempty"`
	Event       string            `json:"event,omitempty"`
	Format      string            `json:"format,omitempty"`
	Round       string            `json:"round,omitempty"`
	Players     []filename.Player `json:"players,omitempty"`
	Game        int               `json:"game,omitempty"`
	Score       string            `json:"score,omitempty"`
	Stage       string            `json:"stage,omitempty"`
	MissingInfo bool              `json:"missing_info"`
	// Canonical is the name reformatted from the parsed fields.
	Canonical string `json:"canonical"`
}

func viewName(p *filename.Parts) nameView {
	v := nameView{
		Date:        p.Date,
		Time:        p.Time,
		Players:     p.Players,
		Game:        p.GameNumber,
		Stage:       p.Stage,
		MissingInfo: p.HasMissingInfo(),
		Canonical:   p.ToFileName(),
	}
	if p.Event.IsSet() {
		v.Event = p.Event.String()
	}
	if p.Format.IsSet() {
		v.Format, v.Round = p.Format.String(), p.Round.String()
	}
	if p.HasScore {
		v.Score = fmt.Sprintf("%d-%d", p.Score.Left, p.Score.Right)
	}
	return v
}

func (a *app) parseNameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse-name NAME...",
		Short: "Print the fields parsed from replay file names.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			views := lo.Map(args, func(name string, _ int) nameView {
				p := filename.FromFileName(filepath.Base(name))
				return viewName(&p)
			})
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
}

func versionNames() string {
	return strings.Join(lo.Map(savefile.Versions(), func(v savefile.Version, _ int) string {
		return v.String()
	}), ", ")
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
