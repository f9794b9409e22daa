package app

import (
	"context"
	"fmt"
)

// Clear removes every recorded detection from the event log and, when
// configured, the database.
func (a *App) Clear(ctx context.Context) error {
	log := a.eventLog()
	count, err := log.Count()
	if err != nil {
		return err
	}
	if err := log.Clear(); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer closeStore()
		if err := store.DeleteDetections(ctx); err != nil {
			return err
		}
	}

	a.Logger.Info().Int("removed", count).Str("path", log.Path()).Msg("detections cleared")
	fmt.Fprintf(a.Out, "Cleared %d detections\n", count)
	return nil
}
