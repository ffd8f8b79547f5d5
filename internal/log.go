package internal

import (
	"fmt"
	"log"
	"os"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type Logging interface {
	Printf(format string, v ...interface{})
}

type logger struct {
	log *log.Logger
}

func (l *logger) Printf(format string, v ...interface{}) {
	_ = l.log.Output(2, fmt.Sprintf(format, v...))
}

// Detached master calls keep logging after their round returned, so the
// logger may be swapped while in use.
var l = atomic.NewPointer(&holder{Logging: &logger{
	log: log.New(os.Stderr, "go-quorum: ", log.LstdFlags|log.Lshortfile),
}})

type holder struct {
	Logging
}

func SetLogger(logger Logging) {
	if logger == nil {
		logger = NopLogger{}
	}
	l.Store(&holder{Logging: logger})
}

func GetLogger() Logging {
	return l.Load().Logging
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Printf(string, ...interface{}) {}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to Logging, messages are written at info level.
func NewZapLogger(z *zap.Logger) Logging {
	return &zapLogger{sugar: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *zapLogger) Printf(format string, v ...interface{}) {
	z.sugar.Infof(format, v...)
}
