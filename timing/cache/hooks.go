package cache

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
)

// AccessLogHook writes one log entry per access at Info level.
type AccessLogHook struct {
	log *logrus.Logger
}

// NewAccessLogHook creates a hook that logs through logger. A nil logger
// selects the standard logrus logger.
func NewAccessLogHook(logger *logrus.Logger) *AccessLogHook {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AccessLogHook{log: logger}
}

// Func logs the access carried by ctx. Contexts from other positions are
// ignored.
func (h *AccessLogHook) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosAccess {
		return
	}

	event, ok := ctx.Item.(AccessEvent)
	if !ok {
		return
	}

	name := ""
	if c, ok := ctx.Domain.(*Cache); ok {
		name = c.Name()
	}

	h.log.WithFields(logrus.Fields{
		"cache":   name,
		"kind":    event.Access.Kind,
		"addr":    fmt.Sprintf("0x%x", event.Access.Addr),
		"set":     event.Set,
		"way":     event.Way,
		"evicted": event.Evicted,
	}).Info(event.Outcome)
}
