// Package file implements the repositories on plain files under the data
// directory. Logs are line-oriented and append-only; documents are replaced
// through a temp file and rename.
package file

import (
	"fmt"
	"os"
	"path/filepath"

	"onisai/internal/domain"
)

// Layout resolves every persisted path under the data directory.
type Layout struct {
	Root string
}

// NewLayout creates a Layout rooted at dir.
func NewLayout(dir string) Layout {
	return Layout{Root: dir}
}

func (l Layout) UnifiedLog() string {
	return filepath.Join(l.Root, "UnifiedDB.txt")
}

func (l Layout) RawLog(day string) string {
	return filepath.Join(l.Root, "UberDB", fmt.Sprintf("TripLog-%s-RAW.txt", day))
}

func (l Layout) SummaryLog(day string) string {
	return filepath.Join(l.Root, "TripDB", fmt.Sprintf("TripLog-%s-SUMMARY.txt", day))
}

func (l Layout) GridDB() string {
	return filepath.Join(l.Root, "GridZoneDB", "grid_db.json")
}

func (l Layout) ZoneReport(kind domain.ZoneKind) string {
	return filepath.Join(l.Root, "GridZoneDB", fmt.Sprintf("%s_zone_summary.txt", kind))
}

func (l Layout) GuardrailLog() string {
	return filepath.Join(l.Root, "GridZoneDB", "grid_guardrail_log.txt")
}

func (l Layout) StateFile() string {
	return filepath.Join(l.Root, "State", "onisai_state.json")
}

func (l Layout) LockFile() string {
	return filepath.Join(l.Root, "State", "pipeline.lock")
}

func (l Layout) Outbox() string {
	return filepath.Join(l.Root, "Outbox", "notifications.jsonl")
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{"UberDB", "TripDB", "GridZoneDB", "State", "Outbox"} {
		if err := os.MkdirAll(filepath.Join(l.Root, dir), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
