package log

import (
	"context"
	"strings"

	E "github.com/fundon/smol-tokio-hyper-benchmarks/common/exceptions"

	"github.com/sirupsen/logrus"
)

func init() {
	logrus.StandardLogger().Formatter.(*logrus.TextFormatter).ForceColors = true
	logrus.AddHook(new(TaggedHook))
}

// SetVerbose switches the standard logger between info and trace level.
func SetVerbose(verbose bool) {
	if verbose {
		logrus.SetLevel(logrus.TraceLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func NewLogger(tag string) *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger()).WithField("tag", tag)
}

type TaggedHook struct{}

func (h *TaggedHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *TaggedHook) Fire(entry *logrus.Entry) error {
	if tagObj, loaded := entry.Data["tag"]; loaded {
		tag := tagObj.(string)
		delete(entry.Data, "tag")
		entry.Message = strings.ReplaceAll(entry.Message, tag+": ", "")
		entry.Message = "[" + tag + "]: " + entry.Message
	}
	return nil
}

// ErrorHandler logs the errors it receives. Closed connections and expired
// deadlines are expected during normal operation and logged at debug level.
func ErrorHandler(logger logrus.FieldLogger) E.Handler {
	return E.HandlerFunc(func(ctx context.Context, err error) {
		if E.IsClosed(err) || E.IsTimeout(err) {
			logger.Debug(err)
		} else {
			logger.Error(err)
		}
	})
}
