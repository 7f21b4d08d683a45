package dvs

// Logger is the structured logger the engine, runner and audit recorder
// write to. Args are slog-style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger drops everything.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// fileArgs prefixes kv with the identifying fields of rec.
func fileArgs(rec *FileRecord, kv ...any) []any {
	return append([]any{"id", rec.ID, "path", rec.SourceFile()}, kv...)
}
