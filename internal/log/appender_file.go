package log

import "gopkg.in/natefinch/lumberjack.v2"

func (m *MultiWriter) AddFileAppender(options FileConfig) *MultiWriter {
	writer := &lumberjack.Logger{
		Filename:   options.Path,
		MaxSize:    options.MaxSizeMB,  // megabytes
		MaxBackups: options.MaxBackups, // number of backups
		MaxAge:     options.MaxAgeDays, // days
		Compress:   options.Compress,   // compress the backups
	}
	m.writers = append(m.writers, writer)
	return m
}
