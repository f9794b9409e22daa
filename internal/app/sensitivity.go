package app

import (
	"fmt"

	"pothole-detector/internal/detection"
	"pothole-detector/internal/settings"
)

// SensitivityGet prints the persisted threshold and lock flag.
func (a *App) SensitivityGet() error {
	prefs, err := a.openSettings()
	if err != nil {
		return err
	}
	p := prefs.Load()
	fmt.Fprintf(a.Out, "Threshold: %.0f (%s)\n", p.Threshold, detection.SensitivityLabel(p.Threshold))
	fmt.Fprintf(a.Out, "Locked: %t\n", p.Locked)
	return nil
}

// SensitivitySet persists a new threshold. A running detector watching the
// preferences file picks it up without a restart.
func (a *App) SensitivitySet(threshold float64) error {
	prefs, err := a.openSettings()
	if err != nil {
		return err
	}
	if prefs.Load().Locked {
		return settings.ErrLocked
	}

	stored, err := prefs.SetThreshold(threshold)
	if err != nil {
		return err
	}
	if stored != threshold {
		a.Logger.Warn().Float64("requested", threshold).Float64("stored", stored).Msg("threshold clamped")
	}
	fmt.Fprintf(a.Out, "Threshold: %.0f (%s)\n", stored, detection.SensitivityLabel(stored))
	return nil
}

// SensitivityLock toggles the lock flag.
func (a *App) SensitivityLock(locked bool) error {
	prefs, err := a.openSettings()
	if err != nil {
		return err
	}
	if err := prefs.SetLocked(locked); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Locked: %t\n", locked)
	return nil
}
