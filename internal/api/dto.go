package api

import (
	"github.com/starford/denote-reconcile/internal/journal"
	"github.com/starford/denote-reconcile/internal/passservice"
)

// PassSummary is a recorded pass without its line items.
type PassSummary = journal.PassSummary

// PassDetail is a recorded pass with its line items.
type PassDetail = journal.Pass

// PassResult is the response of a reconciliation request.
type PassResult = passservice.Result

// PassListResponse wraps paginated pass listings.
type PassListResponse struct {
	Passes []PassSummary `json:"passes" validate:"required"`
	Total  int           `json:"total" example:"42" validate:"required"`
}

// ItemListResponse wraps line items found by note or text search.
type ItemListResponse struct {
	Items []journal.ItemHit `json:"items" validate:"required"`
}

// FilenameResponse is a decoded Denote filename.
type FilenameResponse struct {
	Identifier string   `json:"identifier" example:"20250114T100100" validate:"required"`
	Slug       string   `json:"slug" example:"website-redesign" validate:"required"`
	Tags       []string `json:"tags" validate:"required"`
	Type       string   `json:"type" example:"project" validate:"required"`
	Canonical  string   `json:"canonical" example:"20250114T100100--website-redesign__project.md" validate:"required"`
}
