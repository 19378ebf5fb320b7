package elevnetwork

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"slices"
	"unicode/utf16"
	"unicode/utf8"
)

// A frame is a 2-byte big-endian payload length followed by the UTF-8
// payload, the layout the simulator reads and writes. A zero-length frame
// carries nothing and is skipped by Session.Receive.
const (
	frameHeaderSize = 2
	MaxFrameSize    = 1<<16 - 1
)

var ErrFrameTooLarge = errors.New("frame too large")

func WriteFrame(w io.Writer, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer is nil")
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), MaxFrameSize)
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint16(frame, uint16(len(payload)))
	copy(frame[frameHeaderSize:], payload)

	total := 0
	for total < len(frame) {
		n, err := w.Write(frame[total:])
		total += n
		if err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("write frame: wrote 0 bytes")
		}
	}
	return nil
}

// ReadFrame returns the payload bytes as sent. The simulator writes them as
// Java modified UTF-8, so a rune above U+FFFF arrives as a surrogate pair
// that encoding/json would turn into U+FFFD; Session.Receive converts with
// fromModifiedUTF8 first.
func ReadFrame(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}
	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// Modified UTF-8 writes U+0000 as C0 80 and a rune above U+FFFF as two
// three-byte surrogate halves. Everything else is plain UTF-8.

func fromModifiedUTF8(b []byte) []byte {
	start := slices.IndexFunc(b, func(c byte) bool { return c == 0xC0 || c == 0xED })
	if start < 0 {
		return b
	}
	out := make([]byte, start, len(b))
	copy(out, b[:start])
	for i := start; i < len(b); {
		switch {
		case b[i] == 0xC0 && i+1 < len(b) && b[i+1] == 0x80:
			out = append(out, 0)
			i += 2
		case i+6 <= len(b) && isSurrogateHalf(b[i:], 0xA0) && isSurrogateHalf(b[i+3:], 0xB0):
			r := utf16.DecodeRune(surrogateAt(b[i:]), surrogateAt(b[i+3:]))
			out = utf8.AppendRune(out, r)
			i += 6
		default:
			out = append(out, b[i])
			i++
		}
	}
	return out
}

func toModifiedUTF8(b []byte) []byte {
	start := slices.IndexFunc(b, func(c byte) bool { return c == 0 || c >= 0xF0 })
	if start < 0 {
		return b
	}
	out := make([]byte, start, len(b)+8)
	copy(out, b[:start])
	for i := start; i < len(b); {
		if b[i] == 0 {
			out = append(out, 0xC0, 0x80)
			i++
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if b[i] < 0xF0 || r == utf8.RuneError {
			out = append(out, b[i])
			i++
			continue
		}
		hi, lo := utf16.EncodeRune(r)
		out = appendSurrogate(out, hi)
		out = appendSurrogate(out, lo)
		i += size
	}
	return out
}

// isSurrogateHalf reports whether p starts with an encoded high (lead 0xA0)
// or low (lead 0xB0) surrogate.
func isSurrogateHalf(p []byte, lead byte) bool {
	return p[0] == 0xED && p[1]&0xF0 == lead && p[2]&0xC0 == 0x80
}

func surrogateAt(p []byte) rune {
	return rune(p[0]&0x0F)<<12 | rune(p[1]&0x3F)<<6 | rune(p[2]&0x3F)
}

// appendSurrogate encodes r the way UTF-8 would if surrogates were allowed.
// utf8.AppendRune writes U+FFFD for them instead.
func appendSurrogate(out []byte, r rune) []byte {
	return append(out, 0xE0|byte(r>>12), 0x80|byte(r>>6)&0x3F, 0x80|byte(r)&0x3F)
}
