package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/shopcart/internal/catalog"
	apperrors "github.com/utafrali/shopcart/pkg/errors"
	"github.com/utafrali/shopcart/pkg/httputil"
)

// CatalogReader is the part of the catalog provider the API serves.
type CatalogReader interface {
	Categories(ctx context.Context) ([]catalog.Category, error)
	Category(ctx context.Context, id string) (catalog.Category, error)
}

// CatalogHandler passes the product catalog through to the renderer.
type CatalogHandler struct {
	catalog CatalogReader
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(c CatalogReader, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: c, logger: logger}
}

// ListCategories handles GET /api/v1/catalog
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.catalog.Categories(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]CategoryResponse, 0, len(cats))
	for _, c := range cats {
		resp = append(resp, toCategoryResponse(c))
	}
	httputil.WriteData(w, http.StatusOK, resp)
}

// GetCategory handles GET /api/v1/catalog/{categoryId}
func (h *CatalogHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "categoryId", chi.URLParam(r, "categoryId"))
	if !ok {
		return
	}

	c, err := h.catalog.Category(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, toCategoryResponse(c))
}

func (h *CatalogHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, catalog.ErrCatalogLoad) {
		err = catalogUnavailable(err)
	}
	httputil.WriteError(w, r, err, h.logger)
}

// catalogUnavailable reports a catalog load failure as 503 whatever status the
// catalog server answered with.
func catalogUnavailable(err error) *apperrors.AppError {
	appErr := apperrors.Unavailable("the product catalog could not be loaded", err)
	appErr.Code = "CATALOG_UNAVAILABLE"
	return appErr
}
