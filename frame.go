package lanenet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const frameHeaderSz = 4

var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes a uint32 big-endian length followed by b in a single write.
func WriteFrame(w io.Writer, b []byte) error {
	if uint64(len(b)) > uint64(^uint32(0)) {
		return ErrFrameTooLarge
	}
	pkt := make([]byte, frameHeaderSz+len(b))
	binary.BigEndian.PutUint32(pkt, uint32(len(b)))
	copy(pkt[frameHeaderSz:], b)
	_, err := w.Write(pkt)
	return err
}

// ReadFrame reads exactly one frame. A clean EOF before the header is returned as io.EOF;
// EOF inside a frame is io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var h [frameHeaderSz]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, err
	}
	sz := binary.BigEndian.Uint32(h[:])
	if max > 0 && uint64(sz) > uint64(max) {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, sz)
	}
	b := make([]byte, sz)
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}
