// Package logger builds the process logger.
//
// It configures log/slog with JSON or text output, a process-wide level that
// can be changed at runtime (SetLevel), and redaction of attributes whose keys
// look like credentials.
package logger
