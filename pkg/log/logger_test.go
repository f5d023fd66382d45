package log

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
)

type captureBackend struct {
	mu       sync.Mutex
	messages []string
}

func (c *captureBackend) Log(level logging.Level, calldepth int, rec *logging.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, level.String()+" "+rec.Message())
	return nil
}

func TestAddBackend(t *testing.T) {
	defer SetLevel(Notice)
	var sink bytes.Buffer
	SetSink(&sink)
	defer SetSink(os.Stdout)

	capture := &captureBackend{}
	detach := AddBackend(capture)

	logger := New("test")
	SetLevel(Info)
	logger.Infof("frame %d done", 3)
	logger.Debug("hidden")

	detach()
	logger.Info("after detach")

	assert.Equal(t, []string{"INFO frame 3 done"}, capture.messages)
	assert.Contains(t, sink.String(), "[test] [INFO]")
	assert.Contains(t, sink.String(), "after detach")
	assert.False(t, strings.Contains(sink.String(), "hidden"))
}

func TestSetLevel(t *testing.T) {
	defer SetLevel(Notice)
	var sink bytes.Buffer
	SetSink(&sink)
	defer SetSink(os.Stdout)

	logger := New("level")
	SetLevel(Warning)
	logger.Notice("quiet")
	logger.Warning("loud")

	assert.NotContains(t, sink.String(), "quiet")
	assert.Contains(t, sink.String(), "loud")
}
