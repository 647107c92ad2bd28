package log

// Logger receives protocol events from the engine. Log is called inline on
// the connection and read paths, so implementations must be safe for
// concurrent use and should return quickly.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The engine substitutes it when no logger
// is configured; the zero value is ready to use.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// MultiLogger fans each event out to several loggers, typically a
// FileLogger capturing the session next to a SlogAdapter on the console.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger builds a logger that forwards to all given loggers in order.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
