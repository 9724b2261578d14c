// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/capture"
	"github.com/reframedultimate/ReFramed-sub002/session"
	"github.com/reframedultimate/ReFramed-sub002/support/logging"
	"github.com/reframedultimate/ReFramed-sub002/support/network"
)

// lingerTimeout bounds the wait for a client to hang up after playback.
const lingerTimeout = 2 * time.Second

// Player plays a session back to capture clients by emulating the capture
// device.
//
// A client that handshakes, negotiates the mapping tables and asks to resume
// is sent the session as an in-progress game (or training session), every
// frame, and the matching end message.
//
// Player's exported fields must not be changed after playback has begun.
type Player struct {
	// Session is the session to play. It must not be nil.
	Session *session.Session

	// FrameInterval is the delay between frames. If zero, frames are sent as
	// fast as the connection allows.
	FrameInterval time.Duration

	// Logger is the logger instance to use. If nil, no logging will be
	// performed.
	Logger logging.L

	mu     sync.Mutex
	status PlayerStatus
	frame  atomic.Int64
}

// PlayerStatus describes the player's current status.
type PlayerStatus struct {
	// Clients is the number of connections served.
	Clients int64
	// Playing is true while frames are being sent.
	Playing bool
	// Position is the index of the next frame to send.
	Position int
	// Frames is the number of frames in the session.
	Frames int
}

// Status returns the player's current status.
func (p *Player) Status() PlayerStatus {
	p.mu.Lock()
	st := p.status
	p.mu.Unlock()

	st.Position = int(p.frame.Load())
	st.Frames = p.frameCount()
	return st
}

func (p *Player) frameCount() int {
	n := 0
	for i := 0; i < p.Session.FighterCount(); i++ {
		if c := p.Session.FrameCount(i); c > n {
			n = c
		}
	}
	return n
}

func (p *Player) setPlaying(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Playing = v
	if v {
		playerPlayingGauge.Inc()
	} else {
		playerPlayingGauge.Dec()
	}
}

// Serve accepts connections on l and serves each in turn until ctx is
// cancelled. l is closed on return.
func (p *Player) Serve(ctx context.Context, l net.Listener) error {
	logger := logging.Must(p.Logger)
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()
	defer l.Close()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accepting connection")
		}

		logger.Infof("Serving client %s.", conn.RemoteAddr())
		if err := p.ServeConn(ctx, conn); err != nil {
			playerErrors.Inc()
			logger.Warnf("Error serving client %s: %s", conn.RemoteAddr(), err)
		}
	}
}

// ServeConn serves one client on conn, and closes it on return.
//
// ServeConn returns nil once the session has been sent, the client hangs up,
// or ctx is cancelled.
func (p *Player) ServeConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	p.mu.Lock()
	p.status.Clients++
	p.mu.Unlock()

	pc := playerConn{
		Player: p,
		logger: logging.Prefixed(p.Logger, fmt.Sprintf("client %s: ", conn.RemoteAddr())),
		enc:    capture.NewEncoder(countingWriter{conn}),
	}
	rd := bufio.NewReader(conn)
	for {
		req, err := capture.ReadRequest(rd)
		switch {
		case ctx.Err() != nil:
			return nil
		case err == io.EOF:
			return nil
		case err != nil:
			return errors.Wrap(err, "reading request")
		}

		done, err := pc.answer(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "answering %s", req.Type)
		}
		if done {
			// Hang up, then wait for the client to do the same so that nothing
			// it has yet to read is lost to a reset.
			if err := network.CloseWrite(conn); err != nil {
				return err
			}
			_ = conn.SetReadDeadline(time.Now().Add(lingerTimeout))
			_, _ = io.Copy(io.Discard, rd)
			return nil
		}
	}
}

type playerConn struct {
	*Player

	logger logging.L
	enc    *capture.Encoder
}

// answer responds to req. It returns true once the session has been sent.
func (pc *playerConn) answer(ctx context.Context, req capture.Request) (bool, error) {
	s := pc.Session
	mi := s.MappingInfo()
	playerSentMessages.WithLabelValues(req.Type.String()).Inc()

	switch req.Type {
	case capture.ProtocolVersion:
		if req.Major != capture.VersionMajor || req.Minor != capture.VersionMinor {
			pc.logger.Warnf("Client requested protocol %d.%d.", req.Major, req.Minor)
		}
		return false, pc.enc.Version(capture.VersionMajor, capture.VersionMinor)

	case capture.MappingInfoChecksum:
		return false, pc.enc.MappingChecksum(mi.Checksum)

	case capture.MappingInfoRequest:
		return false, pc.enc.MappingInfo(mi)

	case capture.GameResume:
		if s.Type() != session.Game {
			return false, nil
		}
		return true, pc.play(ctx)

	case capture.TrainingResume:
		if s.Type() != session.Training {
			return false, nil
		}
		return true, pc.play(ctx)

	default:
		return false, nil
	}
}

func (pc *playerConn) play(ctx context.Context) error {
	s := pc.Session
	md := s.MetaData()

	entryIDs := make([]uint8, len(md.Players))
	for i := range entryIDs {
		entryIDs[i] = uint8(i)
	}

	var err error
	switch md.Type {
	case session.Game:
		err = pc.enc.GameStart(true, md.Stage, entryIDs, md.Players)
	case session.Training:
		if len(md.Players) != 2 {
			return errors.Errorf("training session has %d players", len(md.Players))
		}
		err = pc.enc.TrainingStart(true, md.Stage, md.Players[0].Fighter, md.Players[1].Fighter, md.Players[0].Tag)
	}
	if err != nil {
		return err
	}

	pc.setPlaying(true)
	defer pc.setPlaying(false)

	var ticker *time.Ticker
	if pc.FrameInterval > 0 {
		ticker = time.NewTicker(pc.FrameInterval)
		defer ticker.Stop()
	}

	frames := pc.frameCount()
	pc.logger.Debugf("Sending %d frames for %d players.", frames, len(entryIDs))
	for i := 0; i < frames; i++ {
		pc.frame.Store(int64(i))
		if ticker != nil && i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		for p, id := range entryIDs {
			f, ok := s.Frame(p, i)
			if !ok {
				continue
			}
			if err := pc.enc.FighterState(id, &f); err != nil {
				return err
			}
		}
	}
	pc.frame.Store(int64(frames))

	if md.Type == session.Training {
		return pc.enc.TrainingEnd()
	}
	return pc.enc.GameEnd()
}

// countingWriter counts the bytes written to the player's clients.
type countingWriter struct {
	io.Writer
}

func (w countingWriter) Write(b []byte) (int, error) {
	n, err := w.Writer.Write(b)
	playerSentBytes.Add(float64(n))
	return n, err
}
