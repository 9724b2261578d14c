// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package rfcore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/reframedultimate/ReFramed-sub002/capture"
	"github.com/reframedultimate/ReFramed-sub002/library"
	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/replay"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/network"
)

// openIndex opens the configured library index, creating its directory.
func (a *app) openIndex() (*library.Index, error) {
	if dir := filepath.Dir(a.cfg.IndexPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating index directory %q", dir)
		}
	}
	ix, err := library.Open(a.cfg.IndexPath)
	if err != nil {
		return nil, err
	}
	ix.Logger = a.logger
	if ix.Location, err = a.cfg.Location(); err != nil {
		_ = ix.Close()
		return nil, err
	}
	return ix, nil
}

func (a *app) captureCommand() *cobra.Command {
	var (
		reconnect time.Duration
		noIndex   bool
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record sessions from a capture device into the replay directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a.serveMetrics(ctx)

			opts, err := a.cfg.SaveOptions()
			if err != nil {
				return err
			}
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(a.cfg.ReplayDir, 0o755); err != nil {
				return errors.Wrapf(err, "creating replay directory %q", a.cfg.ReplayDir)
			}

			rec := &replay.Recorder{
				Dir:      a.cfg.ReplayDir,
				Options:  opts,
				Location: loc,
				Logger:   a.logger,
			}
			if !noIndex {
				ix, err := a.openIndex()
				if err != nil {
					return err
				}
				defer ix.Close()
				// The final session is saved after ctx is cancelled.
				rec.OnSaved = func(path string, _ *session.Session) {
					if _, err := ix.Update(context.Background(), path); err != nil {
						a.logger.Warnf("Failed to index %q: %s", path, err)
					}
				}
			}

			rec.Start()
			defer func() {
				if err := rec.Stop(); err != nil {
					a.logger.Errorf("Failed to save the last session: %s", err)
				}
			}()
			return a.captureLoop(ctx, rec, reconnect)
		},
	}
	cmd.Flags().DurationVar(&reconnect, "reconnect", 5*time.Second,
		"Delay before reconnecting to a lost device. If 0, capture stops when the device is lost.")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "Do not add saved replays to the library index.")
	return cmd
}

// captureLoop connects to the device and receives its stream until ctx is
// cancelled, reconnecting after each lost connection. The mapping tables are
// kept across connections, so that an unchanged device does not resend them.
func (a *app) captureLoop(ctx context.Context, rec *replay.Recorder, reconnect time.Duration) error {
	addr, err := network.ParseEndpoint(a.cfg.Device)
	if err != nil {
		return err
	}

	var cached *mapping.Info
	keepMapping := capture.HandlerFunc(func(e capture.Event) {
		if mc, ok := e.(capture.MappingComplete); ok {
			cached = mc.Mapping
		}
	})

	for {
		err := a.captureOnce(ctx, addr, capture.Handlers{keepMapping, rec}, cached)
		switch {
		case ctx.Err() != nil:
			return nil
		case reconnect <= 0:
			return err
		case err != nil:
			a.logger.Warnf("Lost capture device %s: %s", addr, err)
		default:
			a.logger.Infof("Capture device %s hung up.", addr)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnect):
		}
	}
}

func (a *app) captureOnce(ctx context.Context, addr string, h capture.Handler, cached *mapping.Info) error {
	conn, err := network.Dial(ctx, addr)
	if err != nil {
		return err
	}

	c := capture.Client{
		Logger:  a.logger,
		Handler: h,
		Mapping: cached,
	}
	if _, err := c.Handshake(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}
	if err := c.NegotiateMapping(); err != nil {
		_ = conn.Close()
		return err
	}
	a.logger.Infof("Recording from %s into %q.", addr, a.cfg.ReplayDir)
	return c.Run(ctx)
}

func (a *app) serveCommand() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "serve FILE",
		Short: "Play a replay back to capture clients by emulating a capture device.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a.serveMetrics(ctx)

			s, err := replay.LoadFile(args[0])
			if err != nil {
				return err
			}
			l, err := network.Listen(a.cfg.Listen)
			if err != nil {
				return err
			}

			p := replay.Player{
				Session:       s,
				FrameInterval: interval,
				Logger:        a.logger,
			}
			a.logger.Infof("Serving %q on %s.", args[0], l.Addr())
			err = p.Serve(ctx, l)
			st := p.Status()
			a.logger.Infof("Served %d client(s).", st.Clients)
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "frame-interval", time.Second/60,
		"Delay between frames. If 0, frames are sent as fast as possible.")
	return cmd
}

func (a *app) indexCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "index [DIR]",
		Short: "Index a replay directory, the configured one by default.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			dir := a.cfg.ReplayDir
			if len(args) > 0 {
				dir = args[0]
			}
			ix, err := a.openIndex()
			if err != nil {
				return err
			}
			defer ix.Close()

			if !watch {
				res, err := ix.Scan(ctx, dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d added, %d updated, %d unchanged, %d removed, %d failed\n",
					res.Added, res.Updated, res.Unchanged, res.Removed, res.Failed)
				return nil
			}

			a.serveMetrics(ctx)
			w := library.Watcher{
				Index:  ix,
				Dir:    dir,
				Logger: a.logger,
				OnUpdate: func(path string, e *library.Entry) {
					switch {
					case e == nil:
						a.logger.Infof("Removed %q.", path)
					case !e.Loaded():
						a.logger.Warnf("Indexed unloadable %q.", path)
					default:
						a.logger.Infof("Indexed %q.", path)
					}
				},
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep the index current until interrupted.")
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	var (
		q      library.Query
		asJSON bool
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed replays.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ix, err := a.openIndex()
			if err != nil {
				return err
			}
			defer ix.Close()

			if !all {
				q.Dir = a.cfg.ReplayDir
			}
			entries, err := ix.List(cmd.Context(), q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, entries)
			}
			for _, e := range entries {
				fmt.Fprintln(out, formatEntry(e))
			}
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&q.Player, "player", "", "Only list replays with this player.")
	fs.StringVar(&q.Fighter, "fighter", "", "Only list replays with this fighter.")
	fs.StringVar(&q.Stage, "stage", "", "Only list replays on this stage.")
	fs.StringVar(&q.Type, "type", "", "Only list replays of this type: game or training.")
	fs.BoolVar(&q.Mismatched, "mismatched", false, "Only list replays whose file names disagree with their contents.")
	fs.BoolVar(&q.Failed, "failed", false, "Only list replays that could not be loaded.")
	fs.BoolVar(&all, "all", false, "List replays outside the replay directory too.")
	fs.BoolVar(&asJSON, "json", false, "Print entries as JSON.")
	return cmd
}

func formatEntry(e *library.Entry) string {
	if !e.Loaded() {
		return fmt.Sprintf("%s  FAILED: %s", e.Path, e.LoadError)
	}

	players := lo.Map(e.Players, func(p library.Player, _ int) string {
		if p.Fighter == "" {
			return p.Name
		}
		return fmt.Sprintf("%s (%s)", p.Name, p.Fighter)
	})
	line := fmt.Sprintf("%s  %-8s  %-20s  %s  %s",
		e.Started.Format("2006-01-02 15:04"), e.Type, e.Stage, strings.Join(players, " vs "), e.Path)
	if len(e.Mismatches) > 0 {
		line += "  [mismatch: " + strings.Join(e.Mismatches, ", ") + "]"
	}
	return line
}
