package log

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// BadgerLogger implements badger.Logger on top of logrus. Badger reports table
// loads and compactions at info level; those go to debug so a crawl's output
// only carries journal problems.
type BadgerLogger struct {
	entry *logrus.Entry
}

// NewBadgerLogger tags entry with component=badgerdb
func NewBadgerLogger(entry *logrus.Entry) *BadgerLogger {
	return &BadgerLogger{entry: entry.WithField("component", "badgerdb")}
}

func (l *BadgerLogger) Errorf(f string, v ...interface{})   { l.entry.Error(message(f, v)) }
func (l *BadgerLogger) Warningf(f string, v ...interface{}) { l.entry.Warn(message(f, v)) }
func (l *BadgerLogger) Infof(f string, v ...interface{})    { l.entry.Debug(message(f, v)) }
func (l *BadgerLogger) Debugf(f string, v ...interface{})   { l.entry.Trace(message(f, v)) }

// badger terminates most messages with a newline of its own
func message(f string, v []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(f, v...), "\n")
}
