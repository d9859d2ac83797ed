package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger writes category-tagged lines to stdout and, when LOG_FILE is set, to a file.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	file  *os.File
	level Level
	exit  func(int)
}

var (
	debugColor   = color.New(color.FgHiBlack)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	processColor = color.New(color.FgGreen)
	paymentColor = color.New(color.FgMagenta)
	kafkaColor   = color.New(color.FgBlue)
	dbColor      = color.New(color.FgHiBlue)
	webhookColor = color.New(color.FgHiMagenta)
	apiColor     = color.New(color.FgWhite)
	secColor     = color.New(color.FgHiRed)
)

func NewLogger() *Logger {
	l := &Logger{
		out:   os.Stdout,
		level: parseLevel(os.Getenv("LOG_LEVEL")),
		exit:  os.Exit,
	}

	if path := os.Getenv("LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logger: cannot open %s: %v\n", path, err)
		} else {
			l.file = f
		}
	}

	return l
}

// NewWithWriter returns an uncolored logger writing to w. Used by tests.
func NewWithWriter(w io.Writer, level Level) *Logger {
	return &Logger{out: w, level: level, exit: os.Exit}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter(io.Discard, LevelError+1)
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func (l *Logger) write(level Level, c *color.Color, tag, category, msg string) {
	if l == nil || level < l.level {
		return
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	line := fmt.Sprintf("%s [%s] [%s] %s", ts, tag, category, msg)

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.out.(*os.File); ok && f == os.Stdout {
		c.Fprintln(l.out, line)
	} else {
		fmt.Fprintln(l.out, line)
	}
	if l.file != nil {
		fmt.Fprintln(l.file, line)
	}
}

func (l *Logger) Debug(category, msg string) { l.write(LevelDebug, debugColor, "DEBUG", category, msg) }
func (l *Logger) Info(category, msg string)  { l.write(LevelInfo, infoColor, "INFO", category, msg) }
func (l *Logger) Warn(category, msg string)  { l.write(LevelWarn, warnColor, "WARN", category, msg) }
func (l *Logger) Error(category, msg string) { l.write(LevelError, errorColor, "ERROR", category, msg) }

// Fatal logs and terminates the process.
func (l *Logger) Fatal(category, msg string) {
	l.write(LevelError, errorColor, "FATAL", category, msg)
	l.Close()
	l.exit(1)
}

func (l *Logger) LogProcess(category, msg string) {
	l.write(LevelInfo, processColor, "PROCESS", category, msg)
}

func (l *Logger) LogDatabase(operation, database, msg string) {
	l.write(LevelInfo, dbColor, "DB", database+":"+operation, msg)
}

func (l *Logger) LogKafka(operation, topic, msg string) {
	l.write(LevelInfo, kafkaColor, "KAFKA", topic+":"+operation, msg)
}

func (l *Logger) LogPayment(operation, paymentID, msg string) {
	l.write(LevelInfo, paymentColor, "PAYMENT", operation+":"+paymentID, msg)
}

func (l *Logger) LogWebhook(operation, eventID, msg string) {
	l.write(LevelInfo, webhookColor, "WEBHOOK", operation+":"+eventID, msg)
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.write(LevelInfo, apiColor, "API", method, fmt.Sprintf("%s %s (%s)", path, status, duration))
}

func (l *Logger) LogSecurity(event, msg string) {
	l.write(LevelWarn, secColor, "SECURITY", event, msg)
}
