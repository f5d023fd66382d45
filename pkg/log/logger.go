package log

import (
	"io"
	"os"
	"sync"

	"github.com/op/go-logging"
)

type Level logging.Level

// The levels that can be passed to the SetLevel function.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

// The logger format
var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

var (
	mu sync.Mutex

	// The formatted output sink and any extra backends attached via AddBackend.
	sink  logging.Backend
	extra []logging.Backend

	// The internal leveled logger backend
	leveledBackend logging.LeveledBackend
	level          = logging.NOTICE
)

// The logger interface
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// Create a new named logger.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// Override the backend output sink.
func SetSink(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	backend := logging.NewLogBackend(w, "", 0)
	sink = logging.NewBackendFormatter(backend, format)
	rebuild()
}

// Attach an additional backend that receives every record passing the level
// filter. The returned function detaches it again.
func AddBackend(b logging.Backend) func() {
	mu.Lock()
	defer mu.Unlock()

	extra = append(extra, b)
	rebuild()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		for i, e := range extra {
			if e == b {
				extra = append(extra[:i], extra[i+1:]...)
				break
			}
		}
		rebuild()
	}
}

// Set logger verbosity.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()

	switch l {
	case Debug:
		level = logging.DEBUG
	case Info:
		level = logging.INFO
	case Notice:
		level = logging.NOTICE
	case Warning:
		level = logging.WARNING
	case Error:
		level = logging.ERROR
	}

	leveledBackend.SetLevel(level, "")
}

// rebuild must be called with mu held.
func rebuild() {
	backends := append([]logging.Backend{sink}, extra...)
	leveledBackend = logging.MultiLogger(backends...)
	leveledBackend.SetLevel(level, "")
	logging.SetBackend(leveledBackend)
}

func init() {
	SetSink(os.Stdout)
	SetLevel(Notice)
}
