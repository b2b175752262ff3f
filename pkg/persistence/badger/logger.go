package badger

import (
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// zapBadgerLogger routes badger's printf style output into zap. Badger
// terminates its messages with a newline and logs compaction progress at
// info level, which is demoted to debug here.
type zapBadgerLogger struct {
	sugar *zap.SugaredLogger
}

var _ badgerdb.Logger = (*zapBadgerLogger)(nil)

func newZapBadgerLogger(logger *zap.Logger) *zapBadgerLogger {
	return &zapBadgerLogger{sugar: logger.With(zap.String("component", "badger")).Sugar()}
}

func (z *zapBadgerLogger) Errorf(format string, args ...interface{}) {
	z.sugar.Errorf(trimNewline(format), args...)
}

func (z *zapBadgerLogger) Warningf(format string, args ...interface{}) {
	z.sugar.Warnf(trimNewline(format), args...)
}

func (z *zapBadgerLogger) Infof(format string, args ...interface{}) {
	z.sugar.Debugf(trimNewline(format), args...)
}

func (z *zapBadgerLogger) Debugf(format string, args ...interface{}) {
	z.sugar.Debugf(trimNewline(format), args...)
}

func trimNewline(format string) string {
	return strings.TrimRight(format, "\n")
}
