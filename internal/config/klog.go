package config

import (
	"fmt"

	"github.com/klone-io/klone/internal/klog"
)

// BuildLogger assembles a *klog.Logger from KlogConfig, wiring in each
// configured sink — memory is always present, file and syslog only when
// their config fields are set — per SPEC_FULL.md §4.9.
func (k KlogConfig) BuildLogger(ident string) (*klog.Logger, error) {
	logger := klog.New(ident)
	logger.AddSink(klog.NewMemorySink(k.MemoryCapacity, klog.ParseLevel(k.MemoryMinLevel)))

	if k.FileBasename != "" {
		fs, err := klog.NewFileSink(k.FileBasename, k.FileCount, k.FileLineLimit, klog.ParseLevel(k.FileMinLevel))
		if err != nil {
			return nil, fmt.Errorf("config: klog file sink: %w", err)
		}
		logger.AddSink(fs)
	}

	if k.SyslogTag != "" {
		ss, err := klog.NewSyslogSink(k.SyslogTag, klog.ParseLevel(k.SyslogMinLevel))
		if err != nil {
			return nil, fmt.Errorf("config: klog syslog sink: %w", err)
		}
		logger.AddSink(ss)
	}

	return logger, nil
}
