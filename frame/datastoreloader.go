package frame

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/smux"
)

// DatastoreLoader resolves a frame identifier through a remote
// asset-catalog registry. A single reliable session is dialed once and
// multiplexed: each Load opens one smux stream, writes the identifier,
// and reads back an 8-byte (width, height) header followed by a
// snappy-framed pixel payload.
type DatastoreLoader struct {
	// Ident maps a Coord to the opaque identifier the registry expects.
	Ident func(Coord) string

	mu      sync.Mutex
	session *smux.Session
}

// DialDatastoreLoader opens a KCP connection to addr, wraps it in a
// smux client session, and returns a loader backed by it.
func DialDatastoreLoader(addr string, block kcp.BlockCrypt, ident func(Coord) string) (*DatastoreLoader, error) {
	conn, err := kcp.DialWithOptions(addr, block, 10, 3)
	if err != nil {
		return nil, errors.Wrapf(err, "datastoreloader: dial %s", addr)
	}
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)

	session, err := smux.Client(conn, smux.DefaultConfig())
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "datastoreloader: open smux session")
	}
	return &DatastoreLoader{Ident: ident, session: session}, nil
}

// Close tears down the multiplexed session.
func (l *DatastoreLoader) Close() error {
	return l.session.Close()
}

// Load implements Loader. It opens a fresh stream per request so
// concurrent workers never block on each other's in-flight frame.
func (l *DatastoreLoader) Load(ctx context.Context, coord Coord) (*Frame, error) {
	id := l.Ident(coord)

	l.mu.Lock()
	stream, err := l.session.OpenStream()
	l.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "datastoreloader: open stream")
	}
	defer stream.Close()

	if _, err := fmt.Fprintf(stream, "%s\n", id); err != nil {
		return nil, errors.Wrap(err, "datastoreloader: write request")
	}

	var header [8]byte
	if _, err := io.ReadFull(stream, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "datastoreloader: read header")
	}
	w := int(binary.BigEndian.Uint32(header[0:4]))
	h := int(binary.BigEndian.Uint32(header[4:8]))
	if w <= 0 || h <= 0 {
		return nil, ErrNotFound
	}

	raw, err := io.ReadAll(snappy.NewReader(stream))
	if err != nil {
		return nil, errors.Wrap(err, "datastoreloader: decompress payload")
	}
	if len(raw) != w*h*4 {
		return nil, errors.Errorf("datastoreloader: expected %d bytes, got %d", w*h*4, len(raw))
	}

	out := NewFrame(w, h)
	for i := range out.Pix {
		out.Pix[i] = binary.BigEndian.Uint32(raw[i*4 : i*4+4])
	}
	return out, nil
}
