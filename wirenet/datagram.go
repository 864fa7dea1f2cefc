package wirenet

import (
	"bufio"
	"errors"
	"io"

	"github.com/TheSmallBoat/tether/tetherlib"
	"github.com/lithdew/bytesutil"
)

// MaxFrameSize bounds a single frame: the kind byte plus the body.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge rejects a frame whose declared size exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Datagram is an application message carrying an opaque payload. On the
// wire it is framed as a big-endian uint32 size followed by the kind byte
// and the body.
type Datagram struct {
	Code tetherlib.Kind // message kind; the zero kind is reserved for acknowledgements
	Body []byte         // payload
}

func (d Datagram) Kind() tetherlib.Kind { return d.Code }

func (d Datagram) AppendTo(dst []byte) []byte {
	dst = bytesutil.AppendUint32BE(dst, uint32(1+len(d.Body)))
	dst = append(dst, d.Code)
	dst = append(dst, d.Body...)
	return dst
}

func UnmarshalDatagram(buf []byte) (Datagram, error) {
	var d Datagram
	if len(buf) < 4+1 {
		return d, io.ErrUnexpectedEOF
	}
	var size uint32
	size, buf = bytesutil.Uint32BE(buf[:4]), buf[4:]
	if size < 1 {
		return d, io.ErrUnexpectedEOF
	}
	if size > MaxFrameSize {
		return d, ErrFrameTooLarge
	}
	if uint32(len(buf)) < size {
		return d, io.ErrUnexpectedEOF
	}
	d.Code, buf = buf[0], buf[1:]
	d.Body = buf[:size-1]
	return d, nil
}

// readFrame reads one frame off r and returns its kind and body. An EOF
// is only clean on a frame boundary; inside a frame it is truncation.
func readFrame(r *bufio.Reader) (tetherlib.Kind, []byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}

	size := bytesutil.Uint32BE(hdr[:])
	if size < 1 {
		return 0, nil, io.ErrUnexpectedEOF
	}
	if size > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}

	kind, err := r.ReadByte()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}

	body := make([]byte, size-1)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return kind, body, nil
}
