package delay

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/pkg/errors"
)

// Request asks for roughly Target of wall-clock time to be consumed with the
// resource profile of Strategy.
type Request struct {
	Strategy Strategy
	Target   time.Duration
}

// Outcome reports how a delay actually went. Err is informational: a delay
// that failed half-way still consumed the measured Actual time, and the
// caller's flow continues either way.
type Outcome struct {
	Requested time.Duration
	Actual    time.Duration
	Err       error
}

// Engine consumes wall-clock time on demand. Delays are best-effort: Run
// never panics and never fails the caller, accuracy degrades from sleep
// (best) to cpu/memory/mixed (worst) because of loop and scheduler overhead.
type Engine struct {
	lgr     *slog.Logger
	tempDir string
}

func NewEngine(lgr *slog.Logger) *Engine {
	lgr = lgr.With(logger.CALLER, "delay engine")
	return &Engine{lgr: lgr, tempDir: os.TempDir()}
}

// Run blocks until roughly request.Target has elapsed. There is no early
// cancellation once a delay is running; every strategy loops until its
// wall-clock deadline.
func (engine *Engine) Run(ctx context.Context, request Request) (outcome Outcome) {
	outcome = Outcome{Requested: request.Target}
	lgr := engine.lgr.With(logger.STRATEGY, request.Strategy.String())

	if request.Target <= 0 {
		outcome.Err = errors.Errorf("target duration must be positive, got %s", request.Target)
		lgr.With(logger.ERROR, outcome.Err).Warn("rejecting delay request")
		return outcome
	}

	startedAt := time.Now()
	defer func() {
		if r := recover(); r != nil {
			outcome.Actual = time.Since(startedAt)
			outcome.Err = errors.Errorf("panic during delay: %v", r)
			lgr.With(logger.ERROR, outcome.Err).With("actual", outcome.Actual).Warn("delay aborted")
		}
	}()

	lgr.With("target", request.Target).Debug("starting delay")

	var err error
	switch request.Strategy {
	case StrategySleep:
		err = engine.sleepDelay(ctx, request.Target)
	case StrategyCpu:
		err = engine.cpuDelay(ctx, request.Target)
	case StrategyMemory:
		err = engine.memoryDelay(ctx, request.Target)
	case StrategyIo:
		err = engine.ioDelay(ctx, request.Target)
	case StrategyNetwork:
		err = engine.networkDelay(ctx, request.Target)
	case StrategyMixed:
		err = engine.mixedDelay(ctx, request.Target)
	default:
		err = errors.Errorf("unknown delay strategy %q", request.Strategy)
	}

	outcome.Actual = time.Since(startedAt)
	outcome.Err = err
	if err != nil {
		lgr.With(logger.ERROR, err).With("actual", outcome.Actual).Warn("delay finished with error")
	} else {
		lgr.With("actual", outcome.Actual).Debug("delay finished")
	}
	return outcome
}
