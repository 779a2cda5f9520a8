//go:build !windows

package klog

import "log/syslog"

// SyslogSink forwards entries to the local syslog daemon at the
// matching severity, per spec.md §4.9's third sink.
type SyslogSink struct {
	minLevel Level
	w        *syslog.Writer
}

// NewSyslogSink dials the system syslogger, tagging every line with tag.
func NewSyslogSink(tag string, minLevel Level) (*SyslogSink, error) {
	w, err := syslog.New(syslog.LOG_INFO, tag)
	if err != nil {
		return nil, err
	}
	return &SyslogSink{minLevel: minLevel, w: w}, nil
}

func (s *SyslogSink) Write(e Entry) {
	if e.Level > s.minLevel {
		return
	}
	switch e.Level {
	case LevelError:
		_ = s.w.Err(e.Msg)
	case LevelWarn:
		_ = s.w.Warning(e.Msg)
	case LevelDebug:
		_ = s.w.Debug(e.Msg)
	default:
		_ = s.w.Info(e.Msg)
	}
}

func (s *SyslogSink) Close() error { return s.w.Close() }
