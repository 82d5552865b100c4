package conductor

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// maxStderrBytes caps how much of a child's stderr is retained.
const maxStderrBytes = 64 * 1024

// tailBuffer keeps the most recent bytes written to it, up to limit.
type tailBuffer struct {
	buf   []byte
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

// appendLine drops exactly the overflow from the head before appending. A
// line that alone exceeds the limit clears everything before it.
func (t *tailBuffer) appendLine(line string) {
	if len(t.buf)+len(line) > t.limit {
		excess := len(t.buf) + len(line) - t.limit
		if excess < len(t.buf) {
			t.buf = append(t.buf[:0], t.buf[excess:]...)
		} else {
			t.buf = t.buf[:0]
		}
	}
	t.buf = append(t.buf, line...)
}

// String returns the retained bytes, skipping a rune cut in half by the head
// trim.
func (t *tailBuffer) String() string {
	b := t.buf
	for len(b) > 0 && !utf8.RuneStart(b[0]) {
		b = b[1:]
	}
	return string(b)
}

// drainStderr reads r line by line until EOF or the first read error and
// returns the retained tail.
func drainStderr(r io.Reader, limit int) string {
	tail := newTailBuffer(limit)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			tail.appendLine(line)
		}
		if err != nil {
			break
		}
	}
	return tail.String()
}
