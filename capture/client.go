// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package capture

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/reframedultimate/ReFramed-sub002/mapping"
	"github.com/reframedultimate/ReFramed-sub002/support/dataio"
	"github.com/reframedultimate/ReFramed-sub002/support/logging"
)

// DefaultHandshakeTimeout bounds Handshake when its context has no deadline.
const DefaultHandshakeTimeout = 5 * time.Second

// Client drives the application side of a capture connection: it performs
// the version handshake, negotiates the mapping tables and asks the device to
// resume any session in progress, then receives the stream.
type Client struct {
	// Logger, if not nil, is the logger to use.
	Logger logging.L

	// Handler, if not nil, receives every event.
	Handler Handler

	// Mapping, if not nil, is a cached copy of the mapping tables. If the
	// device announces the same checksum, the tables are not requested again.
	Mapping *mapping.Info

	// NowFunc, if not nil, is passed to the Receiver.
	NowFunc func() time.Time

	conn    net.Conn
	writeMu sync.Mutex
	recv    *Receiver
}

// Handshake writes a version request on conn and waits for the device's
// ProtocolVersion reply. The Client takes ownership of conn.
func (c *Client) Handshake(ctx context.Context, conn net.Conn) (VersionAnnounced, error) {
	c.conn = conn
	c.recv = &Receiver{}
	if err := c.write(byte(ProtocolVersion), VersionMajor, VersionMinor); err != nil {
		return VersionAnnounced{}, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultHandshakeTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return VersionAnnounced{}, errors.Wrap(err, "setting handshake deadline")
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	// Read unbuffered, so that nothing past the reply is consumed before the
	// Receiver takes over.
	var reply [3]byte
	if err := dataio.ReadFull(conn, reply[:]); err != nil {
		return VersionAnnounced{}, errors.Wrap(err, "reading version reply")
	}
	t := MessageType(reply[0])
	if t != ProtocolVersion {
		return VersionAnnounced{}, protocolErrorf(t, "expected %s reply", ProtocolVersion)
	}
	v := VersionAnnounced{Major: reply[1], Minor: reply[2]}
	if v.Major != VersionMajor || v.Minor != VersionMinor {
		return v, protocolErrorf(t, "unsupported version %d.%d", v.Major, v.Minor)
	}

	logging.Must(c.Logger).Infof("Capture device speaks protocol %d.%d.", v.Major, v.Minor)
	if c.Handler != nil {
		c.Handler.HandleEvent(v)
	}
	return v, nil
}

// NegotiateMapping asks the device for its mapping checksum. When the reply
// arrives during Run, the full tables are requested if the checksum differs
// from the cached Mapping, and a resume is requested once they are current.
func (c *Client) NegotiateMapping() error { return c.write(byte(MappingInfoChecksum)) }

// RequestResume asks the device to announce a game or training session that
// is already in progress.
func (c *Client) RequestResume() error { return c.write(byte(GameResume), byte(TrainingResume)) }

// Run receives the stream until it ends. See Receiver.Run.
func (c *Client) Run(ctx context.Context) error {
	if c.conn == nil {
		return errors.New("Run called before Handshake")
	}

	c.recv.Logger = c.Logger
	c.recv.Handler = HandlerFunc(c.negotiate)
	c.recv.Mapping = c.Mapping
	c.recv.NowFunc = c.NowFunc
	return c.recv.Run(ctx, c.conn)
}

// Shutdown stops a running Client at the next message boundary. It may be
// called from any goroutine once Handshake has returned.
func (c *Client) Shutdown() {
	if c.recv != nil {
		c.recv.Shutdown()
	}
}

func (c *Client) negotiate(e Event) {
	var err error
	switch e := e.(type) {
	case MappingChecksum:
		if e.Current {
			err = c.RequestResume()
		} else {
			err = c.write(byte(MappingInfoRequest))
		}
	case MappingComplete:
		err = c.RequestResume()
	}
	if err != nil {
		logging.Must(c.Logger).Warnf("Capture negotiation failed: %s", err)
	}

	if c.Handler != nil {
		c.Handler.HandleEvent(e)
	}
}

func (c *Client) write(req ...byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(req); err != nil {
		return errors.Wrapf(err, "writing %s request", MessageType(req[0]))
	}
	return nil
}

// Request is one request written by a Client.
type Request struct {
	Type MessageType
	// Major and Minor are the requested version of a ProtocolVersion request.
	Major, Minor uint8
}

// ReadRequest reads one client request. It is used to emulate a device.
func ReadRequest(r dataio.Reader) (Request, error) {
	b, err := r.ReadByte()
	if err != nil {
		return Request{}, err
	}

	req := Request{Type: MessageType(b)}
	switch req.Type {
	case ProtocolVersion:
		var v [2]byte
		if err := dataio.ReadFull(r, v[:]); err != nil {
			return req, err
		}
		req.Major, req.Minor = v[0], v[1]
	case MappingInfoChecksum, MappingInfoRequest, GameResume, TrainingResume:
	default:
		return req, protocolErrorf(req.Type, "not a client request")
	}
	return req, nil
}
