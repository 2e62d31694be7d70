package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name   string
	level  zap.AtomicLevel
	logger *zap.SugaredLogger
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.logger.Desugar()
}

func (imp *impl) Named(name string) *zap.SugaredLogger {
	return imp.logger.Named(name)
}

func (imp *impl) Sync() error {
	return imp.logger.Sync()
}

func (imp *impl) With(args ...interface{}) *zap.SugaredLogger {
	return imp.logger.With(args...)
}

func (imp *impl) WithOptions(opts ...zap.Option) *zap.SugaredLogger {
	return imp.logger.WithOptions(opts...)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.SetLevel(level.AsZap())
}

func (imp *impl) GetLevel() Level {
	switch imp.level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	default:
		return INFO
	}
}

// Sublogger returns a logger named "<parent>.<subname>". The sublogger shares
// the parent's level.
func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}
	return &impl{
		name:   newName,
		level:  imp.level,
		logger: imp.logger.Named(subname),
	}
}

func (imp *impl) AsZap() *zap.SugaredLogger {
	return imp.logger
}

func (imp *impl) Debug(args ...interface{}) {
	imp.logger.Debug(args...)
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.logger.Debugf(template, args...)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.logger.Debugw(msg, keysAndValues...)
}

func (imp *impl) Info(args ...interface{}) {
	imp.logger.Info(args...)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.logger.Infof(template, args...)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.logger.Infow(msg, keysAndValues...)
}

func (imp *impl) Warn(args ...interface{}) {
	imp.logger.Warn(args...)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.logger.Warnf(template, args...)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.logger.Warnw(msg, keysAndValues...)
}

func (imp *impl) Error(args ...interface{}) {
	imp.logger.Error(args...)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.logger.Errorf(template, args...)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.logger.Errorw(msg, keysAndValues...)
}

func (imp *impl) Fatal(args ...interface{}) {
	imp.logger.Fatal(args...)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.logger.Fatalf(template, args...)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.logger.Fatalw(msg, keysAndValues...)
}
