package filterx

import (
	"github.com/OverOrion/axosyslog/logmsg"
	"github.com/OverOrion/axosyslog/util"
)

// Exec evaluates expr against msg in c and classifies the outcome.
//
// An evaluation error is a Failure: the error is logged at debug
// level and cleared.  Otherwise an explicit classification (such as a
// drop) wins over the truthiness of the result.  Either way the scope
// is marked dirty.
func Exec(c *EvalContext, expr Expr, msg *logmsg.LogMessage) EvalResult {
	c.bind(msg)

	result := Failure
	res := expr.Eval(c)
	if res == nil {
		if util.DebugEnabled() {
			util.Debug("FILTERX ERROR",
				c.FormatLastErrorLocation(),
				c.FormatLastError())
		}
		c.ClearErrors()
		c.MarkDirty()
		return result
	}

	if c.err.Result != Success {
		result = c.err.Result
	} else if res.Truthy() {
		result = Success
	}

	Unref(res)
	c.MarkDirty()
	return result
}
