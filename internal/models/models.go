package models

import (
	"fmt"
	"sort"
	"strings"
)

type Status string

const (
	StatusRequested Status = "Requested"
	StatusStarted   Status = "Started"
	StatusFinished  Status = "Finished"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusRequested, StatusStarted, StatusFinished}

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusStarted, StatusFinished:
		return true
	}
	return false
}

// Label is the column heading shown on the board.
func (s Status) Label() string {
	switch s {
	case StatusStarted:
		return "In Progress"
	case StatusFinished:
		return "Completed"
	}
	return string(s)
}

type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "Unpaid"
	PaymentDeposit PaymentStatus = "Deposit"
	PaymentPaid    PaymentStatus = "Paid"
)

var PaymentStatuses = []PaymentStatus{PaymentUnpaid, PaymentDeposit, PaymentPaid}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentDeposit, PaymentPaid:
		return true
	}
	return false
}

// Image sequence names inside Images.
const (
	ImageReferences = "references"
	ImageDrafts     = "drafts"
	ImageFinals     = "finals"
)

var ImageKinds = []string{ImageReferences, ImageDrafts, ImageFinals}

type Images struct {
	References []string `json:"references"`
	Drafts     []string `json:"drafts"`
	Finals     []string `json:"finals"`
}

// Normalized returns a copy with nil sequences replaced by empty ones, so the
// triple always serializes as arrays.
func (im Images) Normalized() Images {
	return Images{
		References: append([]string{}, im.References...),
		Drafts:     append([]string{}, im.Drafts...),
		Finals:     append([]string{}, im.Finals...),
	}
}

// All returns every URL across the three sequences.
func (im Images) All() []string {
	all := make([]string, 0, len(im.References)+len(im.Drafts)+len(im.Finals))
	all = append(all, im.References...)
	all = append(all, im.Drafts...)
	all = append(all, im.Finals...)
	return all
}

func (im Images) Kind(kind string) ([]string, error) {
	switch kind {
	case ImageReferences:
		return im.References, nil
	case ImageDrafts:
		return im.Drafts, nil
	case ImageFinals:
		return im.Finals, nil
	}
	return nil, fmt.Errorf("unknown image kind %q", kind)
}

// WithAppended returns a normalized copy with url added to the end of kind.
func (im Images) WithAppended(kind, url string) (Images, error) {
	out := im.Normalized()
	switch kind {
	case ImageReferences:
		out.References = append(out.References, url)
	case ImageDrafts:
		out.Drafts = append(out.Drafts, url)
	case ImageFinals:
		out.Finals = append(out.Finals, url)
	default:
		return im, fmt.Errorf("unknown image kind %q", kind)
	}
	return out, nil
}

// WithRemoved returns a normalized copy without the entry at index in kind.
func (im Images) WithRemoved(kind string, index int) (Images, error) {
	out := im.Normalized()
	var seq *[]string
	switch kind {
	case ImageReferences:
		seq = &out.References
	case ImageDrafts:
		seq = &out.Drafts
	case ImageFinals:
		seq = &out.Finals
	default:
		return im, fmt.Errorf("unknown image kind %q", kind)
	}
	if index < 0 || index >= len(*seq) {
		return im, fmt.Errorf("image index %d out of range", index)
	}
	*seq = append((*seq)[:index], (*seq)[index+1:]...)
	return out, nil
}

type Commission struct {
	ID            string        `json:"id"`
	ClientName    string        `json:"clientName"`
	Title         string        `json:"title"`
	Price         float64       `json:"price"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	Description   string        `json:"description"`
	Images        Images        `json:"images"`
	Order         *int          `json:"order,omitempty"`
	CreatedAt     int64         `json:"createdAt"` // ms since epoch
	UpdatedAt     int64         `json:"updatedAt"` // ms since epoch
}

// Position is the column position used for sorting; a missing order counts as 0.
func (c Commission) Position() int {
	if c.Order == nil {
		return 0
	}
	return *c.Order
}

// SortByPosition stable-sorts records by order ascending, newest first on ties.
func SortByPosition(records []Commission) {
	sort.SliceStable(records, func(i, j int) bool {
		pi, pj := records[i].Position(), records[j].Position()
		if pi != pj {
			return pi < pj
		}
		return records[i].CreatedAt > records[j].CreatedAt
	})
}

// Matches reports whether the record passes the dashboard search and status filter.
// An empty status or "All" matches every column.
func (c Commission) Matches(query, status string) bool {
	if status != "" && status != "All" && string(c.Status) != status {
		return false
	}
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.ClientName+c.Title), strings.ToLower(query))
}

// Filter returns the records matching query and status, keeping their order.
func Filter(records []Commission, query, status string) []Commission {
	query = strings.TrimSpace(query)
	out := make([]Commission, 0, len(records))
	for _, c := range records {
		if c.Matches(query, status) {
			out = append(out, c)
		}
	}
	return out
}

func IntPtr(v int) *int { return &v }
