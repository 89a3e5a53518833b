package scoreboardclient

import (
	"bufio"
	"io"
	"strings"
)

// maxFrameLine bounds a single SSE line. Snapshots of large events carry
// every raw score, so the default scanner limit is too small.
const maxFrameLine = 4 << 20

type frame struct {
	id    string
	event string
	data  string
}

// frameReader splits a text/event-stream body into frames. onLine is called
// for every line read, comments included, so heartbeats keep a watchdog fed.
type frameReader struct {
	sc     *bufio.Scanner
	onLine func()
}

func newFrameReader(r io.Reader, onLine func()) *frameReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameLine)
	return &frameReader{sc: sc, onLine: onLine}
}

// next returns the next frame that carries data. It returns io.EOF when the
// stream ends cleanly.
func (fr *frameReader) next() (frame, error) {
	var (
		f    frame
		data []string
	)
	for fr.sc.Scan() {
		if fr.onLine != nil {
			fr.onLine()
		}
		line := strings.TrimSuffix(fr.sc.Text(), "\r")

		if line == "" {
			if len(data) == 0 {
				f = frame{}
				continue
			}
			f.data = strings.Join(data, "\n")
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.event = value
		case "data":
			data = append(data, value)
		case "id":
			f.id = value
		}
	}
	if err := fr.sc.Err(); err != nil {
		return frame{}, err
	}
	return frame{}, io.EOF
}
