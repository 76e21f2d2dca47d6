package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bapaynter/commtrack/internal/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("commission not found")

// NotFoundError names the id that did not match any record.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("commission with ID %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ImageCleaner releases image files owned by the upload directory.
type ImageCleaner interface {
	Manages(url string) bool
	Remove(url string) error
}

// Repository is the only writer of the commission file. Every operation is a
// full read-modify-write under mu.
type Repository struct {
	db     *FileDB
	images ImageCleaner
	mu     sync.Mutex
	now    func() time.Time
	newID  func() string
}

func NewRepository(db *FileDB, images ImageCleaner) *Repository {
	return &Repository{
		db:     db,
		images: images,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// FetchAll returns every commission sorted by column order, newest first on
// ties. On a read failure it returns an empty set along with the error.
func (r *Repository) FetchAll() ([]models.Commission, error) {
	r.mu.Lock()
	records, err := r.db.Load()
	r.mu.Unlock()
	if err != nil {
		slog.Error("Failed to load commissions", "error", err)
		return []models.Commission{}, err
	}
	models.SortByPosition(records)
	return records, nil
}

func (r *Repository) Get(id string) (models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records, err := r.db.Load()
	if err != nil {
		return models.Commission{}, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return models.Commission{}, &NotFoundError{ID: id}
	}
	return records[i], nil
}

// Save creates a commission when id is empty, otherwise merges p into the
// existing record. The whole collection is persisted either way.
func (r *Repository) Save(id string, p models.Patch) (models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.db.Load()
	if err != nil {
		return models.Commission{}, err
	}
	now := r.now().UnixMilli()

	var saved models.Commission
	if id != "" {
		i := indexOf(records, id)
		if i < 0 {
			return models.Commission{}, &NotFoundError{ID: id}
		}
		p.ApplyTo(&records[i])
		records[i].UpdatedAt = nextUpdatedAt(records[i].UpdatedAt, now)
		saved = records[i]
	} else {
		saved = models.Commission{
			ID:            r.newID(),
			Status:        models.StatusRequested,
			PaymentStatus: models.PaymentUnpaid,
			Images:        models.Images{}.Normalized(),
			Order:         models.IntPtr(0),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		p.ApplyTo(&saved)
		records = append(records, saved)
	}

	if err := r.db.Save(records); err != nil {
		return models.Commission{}, err
	}
	return saved, nil
}

// BatchSave applies updates in sequence. Updates with empty or unknown ids are
// skipped. The file is written once, and only if something applied.
func (r *Repository) BatchSave(updates []models.Update) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.db.Load()
	if err != nil {
		return 0, err
	}
	now := r.now().UnixMilli()

	applied := 0
	for _, u := range updates {
		if u.ID == "" {
			continue
		}
		i := indexOf(records, u.ID)
		if i < 0 {
			continue
		}
		u.Patch.ApplyTo(&records[i])
		records[i].UpdatedAt = nextUpdatedAt(records[i].UpdatedAt, now)
		applied++
	}
	if applied == 0 {
		return 0, nil
	}
	if err := r.db.Save(records); err != nil {
		return 0, err
	}
	return applied, nil
}

// Delete removes the record and makes a best-effort attempt to remove its
// uploaded images.
func (r *Repository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.db.Load()
	if err != nil {
		return err
	}
	i := indexOf(records, id)
	if i < 0 {
		return &NotFoundError{ID: id}
	}
	victim := records[i]

	if r.images != nil {
		for _, url := range victim.Images.All() {
			if !r.images.Manages(url) {
				continue
			}
			if err := r.images.Remove(url); err != nil {
				slog.Error("Failed to delete file", "url", url, "id", id, "error", err)
			}
		}
	}

	remaining := make([]models.Commission, 0, len(records)-1)
	remaining = append(remaining, records[:i]...)
	remaining = append(remaining, records[i+1:]...)
	return r.db.Save(remaining)
}

// AppendImage adds url to the end of one image sequence.
func (r *Repository) AppendImage(id, kind, url string) (models.Commission, error) {
	return r.updateImages(id, func(im models.Images) (models.Images, error) {
		return im.WithAppended(kind, url)
	})
}

// RemoveImage drops the entry at index from one image sequence. The file
// itself is left on disk.
func (r *Repository) RemoveImage(id, kind string, index int) (models.Commission, error) {
	return r.updateImages(id, func(im models.Images) (models.Images, error) {
		return im.WithRemoved(kind, index)
	})
}

func (r *Repository) updateImages(id string, fn func(models.Images) (models.Images, error)) (models.Commission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.db.Load()
	if err != nil {
		return models.Commission{}, err
	}
	i := indexOf(records, id)
	if i < 0 {
		return models.Commission{}, &NotFoundError{ID: id}
	}
	images, err := fn(records[i].Images)
	if err != nil {
		return models.Commission{}, models.ValidationError{"images": err.Error()}
	}
	records[i].Images = images
	records[i].UpdatedAt = nextUpdatedAt(records[i].UpdatedAt, r.now().UnixMilli())
	if err := r.db.Save(records); err != nil {
		return models.Commission{}, err
	}
	return records[i], nil
}

func indexOf(records []models.Commission, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}

// nextUpdatedAt keeps updatedAt strictly increasing even within one millisecond.
func nextUpdatedAt(prev, now int64) int64 {
	if now <= prev {
		return prev + 1
	}
	return now
}
