// Package predlog writes the per-request prediction log.
//
// Each scored request produces exactly one line. Lines are JSON objects
// with an ISO8601 timestamp, a level and a message carrying amount,
// distance, raw_score and decision.
package predlog

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opensource-finance/fraudscore/internal/domain"
)

// Logger appends prediction records. It is safe for concurrent use.
type Logger struct {
	z    *zap.Logger
	file *os.File
}

// Open creates the log file's directory and opens the file for append.
// With cfg.Stdout set, every record is also written to stdout.
func Open(cfg domain.PredictionLogConfig) (*Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("prediction log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open prediction log: %w", err)
	}

	enc := zapcore.NewJSONEncoder(encoderConfig())
	core := zapcore.NewCore(enc, zapcore.Lock(f), zapcore.InfoLevel)
	if cfg.Stdout {
		console := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zapcore.InfoLevel)
		core = zapcore.NewTee(core, console)
	}

	return &Logger{z: zap.New(core), file: f}, nil
}

// New wraps an existing core. Used by tests and by callers that route
// prediction records elsewhere.
func New(core zapcore.Core) *Logger {
	return &Logger{z: zap.New(core)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	return cfg
}

// Prediction logs one scored request.
func (l *Logger) Prediction(txn domain.TransactionInput, rawScore float64, decision domain.Decision) {
	msg := fmt.Sprintf("amount=%s, distance=%s, raw_score=%.4f, decision=%s",
		formatFloat(txn.Amount), formatFloat(txn.DistanceFromHome), rawScore, decision)

	l.z.Info(msg,
		zap.Float64("amount", txn.Amount),
		zap.Float64("distance", txn.DistanceFromHome),
		zap.Float64("raw_score", rawScore),
		zap.String("decision", string(decision)),
	)
}

// Error logs a failed prediction.
func (l *Logger) Error(err error) {
	l.z.Error("Prediction error: "+err.Error(), zap.Error(err))
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	_ = l.z.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// formatFloat renders x the way the legacy log lines did: integral values
// keep a trailing ".0" and very large or small magnitudes use exponents.
func formatFloat(x float64) string {
	abs := math.Abs(x)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if x == math.Trunc(x) {
		s += ".0"
	}
	return s
}
