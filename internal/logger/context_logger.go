package logger

import (
	"github.com/rs/zerolog"
)

type contextLogger struct {
	zeroLogger zerolog.Logger
	name       string
}

func newContextLogger(root zerolog.Logger, name string, level LogLevel) *contextLogger {
	c := &contextLogger{name: name}
	c.update(root, level)
	return c
}

func (c *contextLogger) update(root zerolog.Logger, level LogLevel) {
	c.zeroLogger = root.Level(toZeroLevel(level)).With().Str("module", c.name).Logger()
}

func (c *contextLogger) Trace(format string, args ...interface{}) {
	c.logMessage(c.zeroLogger.Trace(), format, args)
}

func (c *contextLogger) Debug(format string, args ...interface{}) {
	c.logMessage(c.zeroLogger.Debug(), format, args)
}

func (c *contextLogger) Info(format string, args ...interface{}) {
	c.logMessage(c.zeroLogger.Info(), format, args)
}

func (c *contextLogger) Warning(format string, args ...interface{}) {
	c.logMessage(c.zeroLogger.Warn(), format, args)
}

func (c *contextLogger) Error(format string, args ...interface{}) {
	c.logMessage(c.zeroLogger.Error(), format, args)
}

func (c *contextLogger) ChangeLevel(newLevel LogLevel) {
	c.zeroLogger = c.zeroLogger.Level(toZeroLevel(newLevel))
}

func (c *contextLogger) logMessage(event *zerolog.Event, format string, args []interface{}) {
	if len(args) == 0 {
		event.Msg(format)
		return
	}
	event.Msgf(format, args...)
}

func toZeroLevel(lvl LogLevel) zerolog.Level {
	switch lvl {
	case NONE:
		return zerolog.Disabled
	case ERROR:
		return zerolog.ErrorLevel
	case WARNING:
		return zerolog.WarnLevel
	case INFO:
		return zerolog.InfoLevel
	case DEBUG:
		return zerolog.DebugLevel
	case TRACE:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}
