package simulator

import (
	"github.com/sirupsen/logrus"
)

// LogHook is a logrus.Hook that stamps every entry with the virtual time
// and the execution context of the running event.
type LogHook struct {
	s *Simulator
}

// LogHook creates a logrus.Hook bound to this simulator.
func (s *Simulator) LogHook() *LogHook {
	return &LogHook{s}
}

func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *LogHook) Fire(entry *logrus.Entry) error {
	entry.Data["sim_time"] = h.s.Now().String()
	if ctx := h.s.Context(); ctx != NoContext {
		entry.Data["sim_context"] = ctx
	}
	return nil
}
