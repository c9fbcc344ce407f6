package logger

import (
	"fmt"
	"io"

	echo_log "github.com/labstack/gommon/log"
)

// EchoLoggerAdapter routes echo's internal logging through a module logger.
//
//	e := echo.New()
//	e.Logger = logger.NewEchoLoggerAdapter(central.Module("echo"))
type EchoLoggerAdapter struct {
	logger Logger
}

// NewEchoLoggerAdapter wraps log; a nil logger writes JSON to stdout.
func NewEchoLoggerAdapter(log Logger) *EchoLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &EchoLoggerAdapter{logger: log}
}

// Output, prefix, level and header are owned by the central logger; the
// setters are no-ops.
func (a *EchoLoggerAdapter) Output() io.Writer {
	return io.Discard
}

func (a *EchoLoggerAdapter) SetOutput(_ io.Writer) {}

func (a *EchoLoggerAdapter) Prefix() string {
	return ""
}

func (a *EchoLoggerAdapter) SetPrefix(_ string) {}

func (a *EchoLoggerAdapter) Level() echo_log.Lvl {
	return echo_log.INFO
}

func (a *EchoLoggerAdapter) SetLevel(_ echo_log.Lvl) {}

func (a *EchoLoggerAdapter) SetHeader(_ string) {}

func (a *EchoLoggerAdapter) Print(i ...any) {
	a.logger.Info(fmt.Sprint(i...))
}

func (a *EchoLoggerAdapter) Printf(f string, args ...any) {
	a.logger.Info(fmt.Sprintf(f, args...))
}

func (a *EchoLoggerAdapter) Printj(j echo_log.JSON) {
	a.logger.Info("echo", Any("data", j))
}

func (a *EchoLoggerAdapter) Debug(i ...any) {
	a.logger.Debug(fmt.Sprint(i...))
}

func (a *EchoLoggerAdapter) Debugf(f string, args ...any) {
	a.logger.Debug(fmt.Sprintf(f, args...))
}

func (a *EchoLoggerAdapter) Debugj(j echo_log.JSON) {
	a.logger.Debug("echo", Any("data", j))
}

func (a *EchoLoggerAdapter) Info(i ...any) {
	a.logger.Info(fmt.Sprint(i...))
}

func (a *EchoLoggerAdapter) Infof(f string, args ...any) {
	a.logger.Info(fmt.Sprintf(f, args...))
}

func (a *EchoLoggerAdapter) Infoj(j echo_log.JSON) {
	a.logger.Info("echo", Any("data", j))
}

func (a *EchoLoggerAdapter) Warn(i ...any) {
	a.logger.Warn(fmt.Sprint(i...))
}

func (a *EchoLoggerAdapter) Warnf(f string, args ...any) {
	a.logger.Warn(fmt.Sprintf(f, args...))
}

func (a *EchoLoggerAdapter) Warnj(j echo_log.JSON) {
	a.logger.Warn("echo", Any("data", j))
}

func (a *EchoLoggerAdapter) Error(i ...any) {
	a.logger.Error(fmt.Sprint(i...))
}

func (a *EchoLoggerAdapter) Errorf(f string, args ...any) {
	a.logger.Error(fmt.Sprintf(f, args...))
}

func (a *EchoLoggerAdapter) Errorj(j echo_log.JSON) {
	a.logger.Error("echo", Any("data", j))
}

// Fatal and Panic variants log at ERROR and panic; echo's recover middleware
// and the serve command's shutdown path handle the panic.
func (a *EchoLoggerAdapter) Fatal(i ...any) {
	a.Panic(i...)
}

func (a *EchoLoggerAdapter) Fatalf(f string, args ...any) {
	a.Panicf(f, args...)
}

func (a *EchoLoggerAdapter) Fatalj(j echo_log.JSON) {
	a.Panicj(j)
}

func (a *EchoLoggerAdapter) Panic(i ...any) {
	msg := fmt.Sprint(i...)
	a.logger.Error(msg)
	panic(msg)
}

func (a *EchoLoggerAdapter) Panicf(f string, args ...any) {
	msg := fmt.Sprintf(f, args...)
	a.logger.Error(msg)
	panic(msg)
}

func (a *EchoLoggerAdapter) Panicj(j echo_log.JSON) {
	a.logger.Error("echo panic", Any("data", j))
	panic(fmt.Sprintf("%v", j))
}
