package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/config"
	"github.com/ayusman/handscene/internal/dispatch"
	"github.com/ayusman/handscene/internal/pipeline"
	"github.com/ayusman/handscene/internal/replay"
	"github.com/ayusman/handscene/internal/store"
)

// Replay runs a recorded session through a fresh pipeline built from cfg and
// returns what each tick produced. Commands are computed with the current
// bindings but delivered nowhere.
func Replay(ctx context.Context, cfg config.Config, st *store.Store, sessionID string, log *zap.Logger) ([]pipeline.TickResult, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if _, err := st.Sessions().GetByID(sessionID); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	records, err := st.Ticks().List(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load ticks: %w", err)
	}

	ticks := make([]replay.Tick, len(records))
	for i, rec := range records {
		ticks[i] = replay.Tick{Timestamp: rec.Timestamp, Hands: rec.Hands}
	}

	dcfg, err := dispatchConfig(cfg.Dispatch, st, log)
	if err != nil {
		return nil, err
	}
	// Replays always show what would have been sent.
	dcfg.Enabled = true
	d, err := dispatch.New(dcfg, nil, log)
	if err != nil {
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	p := pipeline.New(cfg.PipelineConfig(), replay.NewSource(ticks), replay.NewProvider(ticks), d, log)
	defer p.Stop()

	log.Info("replaying session", zap.String("session", sessionID), zap.Int("ticks", len(ticks)))
	return replay.Run(ctx, p, ticks)
}
