package deps

import (
	"log/slog"

	"github.com/EPecherkin/sloth-chat/delay"
	"github.com/EPecherkin/sloth-chat/llm/base"
	"github.com/EPecherkin/sloth-chat/telemetry"
	"gorm.io/gorm"
)

// Deps bundles the shared collaborators every component needs. Passed by
// value; components rebind Logger with their own caller attribute.
type Deps struct {
	Logger *slog.Logger
	DBC    *gorm.DB
	LLMC   base.Client
	Sink   telemetry.Sink
	Engine *delay.Engine
}
