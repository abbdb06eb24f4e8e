package worker

import (
	"context"
	"time"

	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/models"
	"github.com/weftlabs/weft/common/sdk"
)

// DelayHandler pauses the walk for a fixed interval.
type DelayHandler struct {
	clock  sdk.Clock
	logger sdk.Logger
}

// NewDelayHandler creates the delay node handler
func NewDelayHandler(clock sdk.Clock, logger sdk.Logger) *DelayHandler {
	return &DelayHandler{clock: clock, logger: logger}
}

func (h *DelayHandler) Type() string {
	return models.NodeTypeDelay
}

type delayConfig struct {
	Ms int64 `mapstructure:"ms"`
}

func (h *DelayHandler) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	var cfg delayConfig
	if err := DecodeConfig(ec.Node.Data, &cfg); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "invalid delay node config", err)
	}
	if cfg.Ms < 0 {
		return nil, apperr.New(apperr.KindValidation, "delay node requires a non-negative ms")
	}

	if err := h.clock.Sleep(ctx, time.Duration(cfg.Ms)*time.Millisecond); err != nil {
		return nil, apperr.Wrap(apperr.KindCancelled, "delay interrupted", err)
	}

	return &Result{Output: nil}, nil
}
