package baresip

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// maxFrame bounds a single ctrl_tcp message.
const maxFrame = 1 << 20

// ErrBadFrame is returned for malformed netstrings.
var ErrBadFrame = errors.New("baresip: malformed netstring")

// writeFrame writes data as a netstring: "<len>:<data>,".
func writeFrame(w io.Writer, data []byte) error {
	buf := make([]byte, 0, len(data)+12)
	buf = strconv.AppendInt(buf, int64(len(data)), 10)
	buf = append(buf, ':')
	buf = append(buf, data...)
	buf = append(buf, ',')
	_, err := w.Write(buf)
	return err
}

// readFrame reads one netstring payload.
func readFrame(r *bufio.Reader) ([]byte, error) {
	head, err := r.ReadString(':')
	if err != nil {
		return nil, err
	}
	digits := head[:len(head)-1]
	if digits == "" || len(digits) > 7 {
		return nil, fmt.Errorf("%w: length %q", ErrBadFrame, digits)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || n > maxFrame {
		return nil, fmt.Errorf("%w: length %q", ErrBadFrame, digits)
	}

	payload := make([]byte, n+1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if payload[n] != ',' {
		return nil, fmt.Errorf("%w: missing terminator", ErrBadFrame)
	}
	return payload[:n], nil
}
