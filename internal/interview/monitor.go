package interview

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RunPauseMonitor checks every recording session for long silences once per
// interval. It catches clients that stopped sending audio altogether, which
// the per-frame check never sees. It returns when ctx is done.
func (o *Orchestrator) RunPauseMonitor(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.MonitorInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", o.cfg.MonitorInterval).Msg("Started pause monitor")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.checkPauses(ctx, o.now())
		}
	}
}

func (o *Orchestrator) checkPauses(ctx context.Context, now time.Time) {
	for _, st := range o.registry.Snapshot() {
		if !st.Recording() {
			continue
		}
		if w := o.engine.CheckPause(st.Tracker, now); w != nil {
			log.Debug().
				Str("session_id", st.ID).
				Dur("silence", now.Sub(st.Tracker.LastVoice())).
				Msg("pause.monitor.emit")
			o.warn(ctx, st, w)
		}
	}
}
