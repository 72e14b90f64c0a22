package tasks

import (
	"fmt"

	"innkeep/pkg/logger"

	"github.com/hibiken/asynq"
)

type asynqLogger struct {
	log *logger.Logger
}

// NewLogger routes asynq's internal logging through the service logger.
func NewLogger(log *logger.Logger) asynq.Logger {
	return &asynqLogger{log: log.With("component", "asynq")}
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...any) { l.log.Fatal(fmt.Sprint(args...)) }
