package mqtt

import (
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// levelLogger routes paho's internal logger into logrus at a fixed level.
type levelLogger struct {
	entry *logrus.Entry
	level logrus.Level
}

func (l levelLogger) Println(v ...interface{}) {
	l.entry.Log(l.level, fmt.Sprint(v...))
}

func (l levelLogger) Printf(format string, v ...interface{}) {
	l.entry.Logf(l.level, format, v...)
}

// SetLogger sends paho's error and critical logs to logger. With debug
// enabled, paho's warnings are forwarded too.
func SetLogger(logger *logrus.Logger) {
	entry := logger.WithField("component", "paho")
	paho.ERROR = levelLogger{entry: entry, level: logrus.ErrorLevel}
	paho.CRITICAL = levelLogger{entry: entry, level: logrus.ErrorLevel}
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		paho.WARN = levelLogger{entry: entry, level: logrus.DebugLevel}
	}
}
