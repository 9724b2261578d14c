// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/reframedultimate/ReFramed-sub002/capture"
	"github.com/reframedultimate/ReFramed-sub002/replay/filename"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/logging"
)

// RecorderStatus is a snapshot of the current recorder status.
type RecorderStatus struct {
	// Name is the path of the most recently saved replay.
	Name  string
	Error error
	// Sessions is the number of replays saved.
	Sessions int64
	// Recording is true if a session is in progress.
	Recording bool
	// Frames is the number of frames recorded in the current session.
	Frames int
	// Duration is the age of the current session.
	Duration time.Duration
}

// A Recorder is a capture.Handler that saves every finished session into a
// directory, named after its metadata.
//
// Its exported fields must not be changed after Start.
type Recorder struct {
	// Dir is the directory that replays are saved into.
	Dir string

	// Options controls the saved format. The zero value saves containers.
	Options SaveOptions

	// Location is the time zone of the date in file names. If nil, the local
	// time zone is used.
	Location *time.Location

	// Logger, if not nil, is the logger to use.
	Logger logging.L

	// NowFunc, if not nil, returns the current time. If nil, time.Now is used.
	NowFunc func() time.Time

	// OnSaved, if not nil, is called with the path of each saved replay.
	OnSaved func(path string, s *session.Session)

	mu sync.Mutex
	// builder assembles sessions. It is nil unless started.
	builder *capture.SessionBuilder
	// lastPath is the most recently saved replay.
	lastPath string
	sessions int64
	// err is the most recent save error.
	err error
}

var _ capture.Handler = (*Recorder)(nil)

// stagingPrefix returns a unique prefix for staged replay files.
func stagingPrefix() string { return "rfr-" + uuid.NewString() }

func (r *Recorder) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc()
	}
	return time.Now()
}

// Start starts recording.
//
// The recording will continue until the Stop method is called.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.builder != nil {
		panic("already started")
	}
	r.builder = &capture.SessionBuilder{
		Logger:     r.Logger,
		NowFunc:    r.NowFunc,
		OnStarted:  func(*session.Session) { recorderRecordingGauge.Inc() },
		OnFinished: r.sessionFinished,
	}
}

// Stop stops the Recorder, saving any session in progress. It returns the
// most recent save error.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	b := r.builder
	r.builder = nil
	r.mu.Unlock()

	if b == nil {
		return nil
	}

	// Finish the current session, if any. The builder calls back into
	// sessionFinished, so the lock must not be held.
	b.HandleEvent(capture.Cancelled{})

	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.err
	r.err = nil
	return err
}

// HandleEvent implements capture.Handler. Events are ignored unless the
// Recorder is started.
func (r *Recorder) HandleEvent(e capture.Event) {
	r.mu.Lock()
	b := r.builder
	r.mu.Unlock()

	if b != nil {
		b.HandleEvent(e)
	}
}

// Status returns a snapshot of the current Recorder status.
//
// If the Recorder is not started, Status will return nil.
func (r *Recorder) Status() *RecorderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.builder == nil {
		return nil
	}

	st := RecorderStatus{
		Name:     r.lastPath,
		Error:    r.err,
		Sessions: r.sessions,
	}
	if s := r.builder.Current(); s != nil {
		st.Recording = true
		st.Frames = s.FrameCount(0)
		st.Duration = r.now().Sub(session.TimeFromMillis(s.MetaData().TimeStarted))
	}
	return &st
}

func (r *Recorder) sessionFinished(s *session.Session) {
	recorderRecordingGauge.Dec()
	logger := logging.Must(r.Logger)

	if s.FrameCount(0) == 0 {
		logger.Infof("Discarding %s session with no frames.", s.Type())
		return
	}

	path, err := r.save(s)

	r.mu.Lock()
	if err != nil {
		r.err = err
	} else {
		r.lastPath = path
		r.sessions++
	}
	r.mu.Unlock()

	if err != nil {
		logger.Errorf("Failed to save %s session: %s", s.Type(), err)
		return
	}
	logger.Infof("Saved replay %q.", path)
	recorderSessions.Inc()
	if r.OnSaved != nil {
		r.OnSaved(path, s)
	}
}

func (r *Recorder) save(s *session.Session) (string, error) {
	if r.Options.Format == FormatRFR {
		var err error
		if s, err = trimFrames(s); err != nil {
			recorderErrors.WithLabelValues("frames").Inc()
			return "", err
		}
	}

	parts := filename.FromMetaData(s.MappingInfo(), s.MetaData(), r.Location)
	path, err := availablePath(r.Dir, parts.ToFileName())
	if err != nil {
		recorderErrors.WithLabelValues("path").Inc()
		return "", err
	}

	if err := SaveFile(path, s, r.Options); err != nil {
		recorderErrors.WithLabelValues("save").Inc()
		return "", err
	}
	return path, nil
}

// trimFrames returns s with every player cut to the shortest player's frame
// count. A fighter state lost in transit otherwise leaves the players
// unequal, which a container cannot store.
func trimFrames(s *session.Session) (*session.Session, error) {
	counts := lo.Times(s.FighterCount(), s.FrameCount)
	n := lo.Min(counts)
	if n == lo.Max(counts) {
		return s, nil
	}

	frames := lo.Times(s.FighterCount(), func(p int) []session.Frame { return s.Frames(p)[:n] })
	return session.NewWithFrames(s.MappingInfo(), s.MetaData(), frames)
}

// availablePath returns a path for name in dir that does not exist yet,
// numbering it " (2)", " (3)", ... if needed.
func availablePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 1; i < 1000; i++ {
		candidate := name
		if i > 1 {
			candidate = base + " (" + strconv.Itoa(i) + ")" + ext
		}
		path := filepath.Join(dir, candidate)
		switch _, err := os.Stat(path); {
		case os.IsNotExist(err):
			return path, nil
		case err != nil:
			return "", errors.Wrapf(err, "checking %q", path)
		}
	}
	return "", errors.Errorf("no free name for %q in %q", name, dir)
}
