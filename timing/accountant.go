package timing

import (
	"context"
	"log/slog"
	"time"

	"github.com/EPecherkin/sloth-chat/delay"
	"github.com/EPecherkin/sloth-chat/logger"
)

// Breakdown decomposes one bracketed external call into genuine call time and
// injected delay time. CallOnly is measured from its own pair of timestamps,
// independent of the delay outcomes, so dashboards can always separate real
// service latency from synthetic latency.
type Breakdown struct {
	CallStartedAt time.Time
	CallEndedAt   time.Time

	PreDelay  *delay.Outcome
	PostDelay *delay.Outcome

	CallOnly time.Duration
	Total    time.Duration
}

func (breakdown Breakdown) PreDelayDuration() time.Duration {
	if breakdown.PreDelay == nil {
		return 0
	}
	return breakdown.PreDelay.Actual
}

func (breakdown Breakdown) PostDelayDuration() time.Duration {
	if breakdown.PostDelay == nil {
		return 0
	}
	return breakdown.PostDelay.Actual
}

func (breakdown Breakdown) TotalDelay() time.Duration {
	return breakdown.PreDelayDuration() + breakdown.PostDelayDuration()
}

// Efficiency is the fraction of total elapsed time spent in the genuine
// external call. Reporting convention of this tool's dashboards, not a general
// correctness property. ok is false when no time was accounted at all.
func (breakdown Breakdown) Efficiency() (ratio float64, ok bool) {
	if breakdown.Total <= 0 {
		return 0, false
	}
	return breakdown.CallOnly.Seconds() / breakdown.Total.Seconds(), true
}

// Accountant brackets a single external call with optional pre- and post-call
// delays and accounts for where the wall-clock time went. Each Execute is
// independent; no state survives an invocation.
type Accountant struct {
	engine *delay.Engine
	lgr    *slog.Logger
}

func NewAccountant(engine *delay.Engine, lgr *slog.Logger) *Accountant {
	lgr = lgr.With(logger.CALLER, "timing accountant")
	return &Accountant{engine: engine, lgr: lgr}
}

// Execute runs the optional pre delay, then call, then the optional post
// delay. The call's result is captured by the caller's closure; its error is
// propagated unchanged, with the breakdown measured so far still returned.
// Delay failures are non-fatal: they are logged and merged into the breakdown
// as the partial time they actually consumed. The post delay is skipped when
// the call fails.
func (acct *Accountant) Execute(ctx context.Context, call func(context.Context) error, pre *delay.Request, post *delay.Request) (Breakdown, error) {
	var breakdown Breakdown
	startedAt := time.Now()

	if pre != nil {
		outcome := acct.engine.Run(ctx, *pre)
		breakdown.PreDelay = &outcome
		if outcome.Err != nil {
			acct.lgr.With(logger.ERROR, outcome.Err).With(logger.STAGE, "pre").Warn("delay failed, continuing to call")
		}
	}

	breakdown.CallStartedAt = time.Now()
	callErr := call(ctx)
	breakdown.CallEndedAt = time.Now()
	breakdown.CallOnly = breakdown.CallEndedAt.Sub(breakdown.CallStartedAt)

	if callErr == nil && post != nil {
		outcome := acct.engine.Run(ctx, *post)
		breakdown.PostDelay = &outcome
		if outcome.Err != nil {
			acct.lgr.With(logger.ERROR, outcome.Err).With(logger.STAGE, "post").Warn("delay failed after call")
		}
	}

	breakdown.Total = time.Since(startedAt)
	return breakdown, callErr
}
