// Package layout wraps external rendering tools that report where text units
// and images of a document sit on its pages.
package layout

import (
	"context"

	"github.com/athapong/docfuse/pkg/model"
)

// UnitKind distinguishes text units from images
type UnitKind string

const (
	TextUnit  UnitKind = "text"
	ImageUnit UnitKind = "image"
)

// Unit places the Ordinal-th text unit (phrase) or image (figure) of a
// document on a page
type Unit struct {
	Kind    UnitKind   `json:"kind"`
	Ordinal int        `json:"ordinal"`
	Page    int        `json:"page"`
	BBox    model.BBox `json:"bbox"`
}

// Layout is the rendering result for one document
type Layout struct {
	Pages []model.Page `json:"pages"`
	Units []Unit       `json:"units"`
}

// Request describes the document to render. Texts and Images list the
// structural units in document order so renderers can report them by ordinal.
type Request struct {
	Name   string
	PDF    []byte
	Texts  []string
	Images []string
}

// Renderer reports per-page bounding boxes for the units of a document
type Renderer interface {
	Render(ctx context.Context, req Request) (*Layout, error)
}
