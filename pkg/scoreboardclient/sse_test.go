package scoreboardclient

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameReader(t *testing.T) {
	body := strings.Join([]string{
		": heartbeat",
		"",
		"id: 1",
		"event: snapshot",
		`data: {"eventId":"e1"}`,
		"",
		"event: ignored-without-data",
		"",
		"id: 2\r",
		"data: line one",
		"data:line two",
		"",
		"data: unterminated",
	}, "\n")

	lines := 0
	fr := newFrameReader(strings.NewReader(body), func() { lines++ })

	f, err := fr.next()
	require.NoError(t, err)
	assert.Equal(t, frame{id: "1", event: "snapshot", data: `{"eventId":"e1"}`}, f)

	f, err = fr.next()
	require.NoError(t, err)
	assert.Equal(t, frame{id: "2", data: "line one\nline two"}, f)

	_, err = fr.next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 13, lines)
}
