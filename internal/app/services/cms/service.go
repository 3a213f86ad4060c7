// Package cms serves managed page content. The gateway treats page lookup
// as a narrow keyed read; the SQL repository is the default adapter.
package cms

import (
	"context"
	"net/http"

	"github.com/cassiopeia-dash/gateway/internal/envelope"
	"github.com/cassiopeia-dash/gateway/internal/logging"
)

// Page is the view model for one managed page.
type Page struct {
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// PageStore is the keyed page lookup collaborator.
type PageStore interface {
	// ActivePage returns the active page for slug. The bool reports
	// whether one exists.
	ActivePage(ctx context.Context, slug string) (Page, bool, error)
}

// Service resolves page content into envelopes.
type Service struct {
	store PageStore
	log   *logging.Logger
}

// NewService wires the page service.
func NewService(store PageStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	return &Service{store: store, log: log}
}

// PageData returns the page for slug, or a PAGE_NOT_FOUND envelope.
func (s *Service) PageData(ctx context.Context, slug string) envelope.Result[Page] {
	page, found, err := s.store.ActivePage(ctx, slug)
	if err != nil {
		s.log.Error(ctx, "page lookup failed", err, map[string]any{"slug": slug})
		return envelope.Failf[Page](envelope.CodeInternalError, http.StatusInternalServerError,
			"page lookup failed")
	}
	if !found {
		return envelope.Failf[Page](envelope.CodePageNotFound, http.StatusNotFound,
			"no active page for slug %q", slug)
	}
	return envelope.Ok(page)
}
