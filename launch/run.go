package launch

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Run launches one kernel on dev under g, waits for the device and writes
// one line per lane to out. Any failure the device reports is returned as
// an error carrying a Status; nothing is written to out in that case.
func Run(dev Device, g Geometry, out io.Writer, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("device", dev.Name()))

	dev.Launch(g)
	log.Debug("kernel launched", zap.Int("groups", g.Groups), zap.Int("lanes", g.Lanes))

	records, err := dev.Synchronize()
	if err != nil {
		log.Debug("synchronize failed", zap.Stringer("status", StatusOf(err)), zap.Error(err))
		return err
	}
	if err := CheckRecords(records, g); err != nil {
		return err
	}
	log.Debug("synchronized", zap.Int("records", len(records)))

	for _, r := range records {
		if _, err := fmt.Fprintln(out, r.Format(g)); err != nil {
			return fmt.Errorf("writing lane output: %w", err)
		}
	}
	return nil
}

// CheckRecords verifies that every lane of g reported exactly once.
func CheckRecords(records []LaneRecord, g Geometry) error {
	if len(records) != g.Total() {
		return Errorf(StatusInvalidRecord, "got %d records, want %d", len(records), g.Total())
	}
	seen := make([]bool, g.Total())
	for _, r := range records {
		if r.Group < 0 || r.Group >= g.Groups || r.Lane < 0 || r.Lane >= g.Lanes {
			return Errorf(StatusInvalidRecord, "group %d lane %d outside %dx%d launch", r.Group, r.Lane, g.Groups, g.Lanes)
		}
		idx := r.Group*g.Lanes + r.Lane
		if seen[idx] {
			return Errorf(StatusInvalidRecord, "group %d lane %d reported twice", r.Group, r.Lane)
		}
		seen[idx] = true
	}
	return nil
}
