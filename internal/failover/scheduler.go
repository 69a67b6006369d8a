package failover

import (
	"time"

	cronlib "github.com/robfig/cron/v3"

	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

// fixedDelay fires every delay after the previous activation. Unlike
// cron.ConstantDelaySchedule it keeps sub-second precision.
type fixedDelay struct {
	delay time.Duration
}

func (s fixedDelay) Next(t time.Time) time.Time {
	return t.Add(s.delay).Truncate(time.Millisecond)
}

// cronLogger adapts Logger to cron.Logger. cron passes alternating key/value pairs.
type cronLogger struct {
	log logpkg.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, toFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(toFields(keysAndValues), logpkg.Err(err))...)
}

func toFields(kv []interface{}) []logpkg.Field {
	fields := make([]logpkg.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, logpkg.F(key, kv[i+1]))
	}
	return fields
}

func newScheduler(log logpkg.Logger) *cronlib.Cron {
	cl := cronLogger{log: log}
	return cronlib.New(
		cronlib.WithLogger(cl),
		cronlib.WithChain(cronlib.Recover(cl), cronlib.SkipIfStillRunning(cl)),
	)
}
