package logmsg

import (
	"fmt"

	"go.uber.org/zap"
)

// EvtTagMsgReference identifies a message instance in traces.
func EvtTagMsgReference(m *LogMessage) zap.Field {
	if m == nil {
		return zap.String("msg", "nil")
	}
	return zap.String("msg", fmt.Sprintf("%p rcptid=%s", m, m.RcptID))
}
