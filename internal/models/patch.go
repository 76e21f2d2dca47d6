package models

import (
	"math"
	"sort"
	"strings"
)

// Patch lists the mutable commission fields. Nil fields are left untouched.
// Images is replaced as a whole triple.
type Patch struct {
	ClientName    *string        `json:"clientName,omitempty"`
	Title         *string        `json:"title,omitempty"`
	Description   *string        `json:"description,omitempty"`
	Price         *float64       `json:"price,omitempty"`
	Status        *Status        `json:"status,omitempty"`
	PaymentStatus *PaymentStatus `json:"paymentStatus,omitempty"`
	Images        *Images        `json:"images,omitempty"`
	Order         *int           `json:"order,omitempty"`
}

// Update is a patch addressed to one record, as applied by a batch save.
type Update struct {
	ID string `json:"id"`
	Patch
}

// PatchFrom builds a patch that sets every mutable field to the record's value.
func PatchFrom(c Commission) Patch {
	images := c.Images
	p := Patch{
		ClientName:    &c.ClientName,
		Title:         &c.Title,
		Description:   &c.Description,
		Price:         &c.Price,
		Status:        &c.Status,
		PaymentStatus: &c.PaymentStatus,
		Images:        &images,
	}
	if c.Order != nil {
		p.Order = IntPtr(*c.Order)
	}
	return p
}

// ApplyTo merges the patch into c. Timestamps are the caller's concern.
func (p Patch) ApplyTo(c *Commission) {
	if p.ClientName != nil {
		c.ClientName = *p.ClientName
	}
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Price != nil {
		c.Price = *p.Price
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		c.PaymentStatus = *p.PaymentStatus
	}
	if p.Images != nil {
		c.Images = p.Images.Normalized()
	}
	if p.Order != nil {
		c.Order = IntPtr(*p.Order)
	}
}

// ValidationError maps field names to human readable messages.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, v[f])
	}
	return strings.Join(msgs, " ")
}

// Validate checks the patch before it reaches the repository. When creating,
// title and client name must be present.
func (p Patch) Validate(creating bool) error {
	errs := ValidationError{}
	if creating {
		if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
			errs["title"] = "Title is required."
		}
		if p.ClientName == nil || strings.TrimSpace(*p.ClientName) == "" {
			errs["clientName"] = "Client name is required."
		}
	} else {
		if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
			errs["title"] = "Title is required."
		}
		if p.ClientName != nil && strings.TrimSpace(*p.ClientName) == "" {
			errs["clientName"] = "Client name is required."
		}
	}
	if p.Price != nil {
		switch price := *p.Price; {
		case math.IsNaN(price) || math.IsInf(price, 0):
			errs["price"] = "Price must be a number."
		case price < 0:
			errs["price"] = "Price must not be negative."
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		errs["status"] = "Invalid status selected."
	}
	if p.PaymentStatus != nil && !p.PaymentStatus.Valid() {
		errs["paymentStatus"] = "Invalid payment status selected."
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
