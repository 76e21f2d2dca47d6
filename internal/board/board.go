// Package board turns drag-and-drop results on the commission board into
// order updates for the repository.
package board

import (
	"fmt"
	"log/slog"

	"github.com/bapaynter/commtrack/internal/models"
)

// Location is a slot on the board: a column and a 0-based index within it.
type Location struct {
	Status models.Status `json:"status"`
	Index  int           `json:"index"`
}

// Move describes one dropped card.
type Move struct {
	ID   string   `json:"id"`
	From Location `json:"from"`
	To   Location `json:"to"`
}

func (m Move) Validate() error {
	errs := models.ValidationError{}
	if m.ID == "" {
		errs["id"] = "Commission id is required."
	}
	if !m.From.Status.Valid() {
		errs["from"] = fmt.Sprintf("Unknown source column %q.", m.From.Status)
	}
	if !m.To.Status.Valid() {
		errs["to"] = fmt.Sprintf("Unknown destination column %q.", m.To.Status)
	}
	if m.To.Index < 0 {
		errs["index"] = "Destination index must not be negative."
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Columns partitions records by status, each column sorted by order and then
// newest first. Every known status has an entry, possibly empty.
func Columns(records []models.Commission) map[models.Status][]models.Commission {
	cols := make(map[models.Status][]models.Commission, len(models.Statuses))
	for _, s := range models.Statuses {
		cols[s] = []models.Commission{}
	}
	for _, c := range records {
		cols[c.Status] = append(cols[c.Status], c)
	}
	for s := range cols {
		models.SortByPosition(cols[s])
	}
	return cols
}

// Plan computes the updates that realise m against records. It returns no
// updates when the card did not move or when the moved id is not in the
// source column any more.
func Plan(records []models.Commission, m Move) ([]models.Update, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.From.Status == m.To.Status && m.From.Index == m.To.Index {
		return nil, nil
	}

	cols := Columns(records)
	source := cols[m.From.Status]
	pos := -1
	for i, c := range source {
		if c.ID == m.ID {
			pos = i
			break
		}
	}
	if pos < 0 {
		slog.Warn("Moved commission not found in source column, ignoring move",
			"id", m.ID, "from", m.From.Status, "to", m.To.Status)
		return nil, nil
	}
	if pos != m.From.Index {
		slog.Debug("Source index differs from stored position", "id", m.ID, "index", m.From.Index, "position", pos)
	}

	moved := source[pos]
	remaining := make([]models.Commission, 0, len(source)-1)
	remaining = append(remaining, source[:pos]...)
	remaining = append(remaining, source[pos+1:]...)

	if m.From.Status == m.To.Status {
		list := insertAt(remaining, clamp(m.To.Index, len(remaining)), moved)
		return renumber(list, "", ""), nil
	}

	moved.Status = m.To.Status
	dest := insertAt(cols[m.To.Status], clamp(m.To.Index, len(cols[m.To.Status])), moved)

	updates := renumber(dest, m.ID, m.To.Status)
	updates = append(updates, renumber(remaining, "", "")...)
	return updates, nil
}

// Repository is the part of the store Apply needs.
type Repository interface {
	FetchAll() ([]models.Commission, error)
	BatchSave(updates []models.Update) (int, error)
}

// Apply plans m against the current records and persists the result in one
// batch. Failures are returned as-is; the caller decides how to recover.
func Apply(repo Repository, m Move) ([]models.Update, error) {
	records, err := repo.FetchAll()
	if err != nil {
		return nil, fmt.Errorf("load commissions: %w", err)
	}
	updates, err := Plan(records, m)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return updates, nil
	}
	if _, err := repo.BatchSave(updates); err != nil {
		return nil, fmt.Errorf("save reorder: %w", err)
	}
	return updates, nil
}

func insertAt(list []models.Commission, i int, c models.Commission) []models.Commission {
	out := make([]models.Commission, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, c)
	return append(out, list[i:]...)
}

// renumber emits order = index for every record. The record named movedID
// also carries its new status.
func renumber(list []models.Commission, movedID string, status models.Status) []models.Update {
	updates := make([]models.Update, 0, len(list))
	for i, c := range list {
		u := models.Update{ID: c.ID, Patch: models.Patch{Order: models.IntPtr(i)}}
		if movedID != "" && c.ID == movedID {
			s := status
			u.Status = &s
		}
		updates = append(updates, u)
	}
	return updates
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
