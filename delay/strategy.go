package delay

import (
	"github.com/pkg/errors"
)

// Strategy names how a delay consumes wall-clock time: a plain wait, or churn
// on one particular resource. The set is closed; ParseStrategy is the only way
// in from user input.
type Strategy string

const (
	StrategySleep   Strategy = "sleep"
	StrategyCpu     Strategy = "cpu"
	StrategyMemory  Strategy = "memory"
	StrategyIo      Strategy = "io"
	StrategyNetwork Strategy = "network"
	StrategyMixed   Strategy = "mixed"
)

func Strategies() []Strategy {
	return []Strategy{StrategySleep, StrategyCpu, StrategyMemory, StrategyIo, StrategyNetwork, StrategyMixed}
}

func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(raw) {
	case StrategySleep, StrategyCpu, StrategyMemory, StrategyIo, StrategyNetwork, StrategyMixed:
		return Strategy(raw), nil
	}
	return "", errors.Errorf("unknown delay strategy %q", raw)
}

func (strategy Strategy) String() string {
	return string(strategy)
}

// Label is the human-facing name shown in chat frontends and benchmark output.
func (strategy Strategy) Label() string {
	switch strategy {
	case StrategySleep:
		return "Simple sleep"
	case StrategyCpu:
		return "CPU intensive"
	case StrategyMemory:
		return "Memory intensive"
	case StrategyIo:
		return "I/O simulation"
	case StrategyNetwork:
		return "Network simulation"
	case StrategyMixed:
		return "Mixed"
	}
	return string(strategy)
}
