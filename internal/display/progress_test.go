package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(100, "starting", &buf, nil, ColorTheme{})

	bar.Update(25, "Person")
	assert.Contains(t, bar.Line(), " 25.0% Person")
	assert.Equal(t, bar.width/4, strings.Count(bar.Line(), "█"))

	report := bar.Func()
	report(150, "")
	assert.Contains(t, bar.Line(), "100.0% Person", "progress is clamped and keeps the last message")

	bar.Finish("done")
	assert.True(t, strings.HasSuffix(buf.String(), "done\n"))
	assert.Equal(t, 3, strings.Count(buf.String(), "\r"))
}

func TestProgressBar_NilWriter(t *testing.T) {
	bar := NewProgressBar(10, "quiet", nil, nil, ColorTheme{})
	bar.Update(5, "")
	bar.Finish("")
	assert.Contains(t, bar.Line(), "100.0% quiet")
}

func TestProgressBar_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(0, "nothing", &buf, nil, ColorTheme{})
	bar.Update(1, "")
	assert.Equal(t, "nothing", bar.Line())
	assert.Empty(t, buf.String())
}
