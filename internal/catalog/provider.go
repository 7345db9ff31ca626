package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/utafrali/shopcart/pkg/errors"
	"github.com/utafrali/shopcart/pkg/httpclient"
	"github.com/utafrali/shopcart/pkg/validator"
)

const maxCatalogBytes = 8 << 20

// fetchTimeout bounds a shared catalog fetch, which outlives the request that
// started it.
const fetchTimeout = 30 * time.Second

// Fetcher performs the GET for the catalog document.
type Fetcher interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Provider fetches the catalog once and serves it from memory until it is
// older than the refresh interval. A failed refresh keeps serving the
// previous copy.
type Provider struct {
	url     string
	fetcher Fetcher
	refresh time.Duration
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	categories []Category
	products   map[string]Product
	loadedAt   time.Time
}

// NewProvider creates a provider for the catalog at url. A zero refresh
// interval keeps the first successful load forever.
func NewProvider(url string, fetcher Fetcher, refresh time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		url:     url,
		fetcher: fetcher,
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
	}
}

// Categories returns every category in catalog order.
func (p *Provider) Categories(ctx context.Context) ([]Category, error) {
	cats, _, err := p.current(ctx)
	return cats, err
}

// Category returns one category by ID.
func (p *Provider) Category(ctx context.Context, id string) (Category, error) {
	cats, _, err := p.current(ctx)
	if err != nil {
		return Category{}, err
	}
	for _, c := range cats {
		if c.ID == id {
			return c, nil
		}
	}
	return Category{}, apperrors.NotFound("category", id)
}

// Product looks a product up by ID across all categories.
func (p *Provider) Product(ctx context.Context, id string) (Product, error) {
	_, products, err := p.current(ctx)
	if err != nil {
		return Product{}, err
	}
	prod, ok := products[id]
	if !ok {
		return Product{}, apperrors.NotFound("product", id)
	}
	return prod, nil
}

// Refresh fetches the catalog now, replacing the cached copy on success.
func (p *Provider) Refresh(ctx context.Context) error {
	_, _, err := p.load(ctx)
	return err
}

func (p *Provider) current(ctx context.Context) ([]Category, map[string]Product, error) {
	p.mu.RLock()
	cats, products, loadedAt := p.categories, p.products, p.loadedAt
	p.mu.RUnlock()

	if cats != nil && (p.refresh <= 0 || p.now().Sub(loadedAt) < p.refresh) {
		return cats, products, nil
	}

	fresh, freshProducts, err := p.load(ctx)
	if err != nil {
		if cats != nil {
			p.logger.WarnContext(ctx, "catalog refresh failed, serving cached copy",
				slog.String("url", p.url),
				slog.Time("loaded_at", loadedAt),
				slog.String("error", err.Error()),
			)
			return cats, products, nil
		}
		return nil, nil, err
	}
	return fresh, freshProducts, nil
}

type loaded struct {
	categories []Category
	products   map[string]Product
}

// load fetches the catalog, collapsing concurrent callers into one request.
// The fetch runs detached from any single caller's cancellation; a caller
// whose ctx ends stops waiting without failing the others.
func (p *Provider) load(ctx context.Context) ([]Category, map[string]Product, error) {
	ch := p.group.DoChan("catalog", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		cats, err := p.fetch(fctx)
		if err != nil {
			return nil, err
		}
		l := loaded{categories: cats, products: index(cats)}

		p.mu.Lock()
		p.categories, p.products, p.loadedAt = l.categories, l.products, p.now()
		p.mu.Unlock()

		p.logger.InfoContext(fctx, "catalog loaded",
			slog.String("url", p.url),
			slog.Int("categories", len(l.categories)),
			slog.Int("products", len(l.products)),
		)
		return l, nil
	})

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, nil, res.Err
		}
		l := res.Val.(loaded)
		return l.categories, l.products, nil
	}
}

func (p *Provider) fetch(ctx context.Context) ([]Category, error) {
	resp, err := p.fetcher.Get(ctx, p.url)
	if err != nil {
		loadErr := &CatalogLoadError{URL: p.url, Err: err}
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			loadErr.Status = statusErr.Status
		}
		return nil, loadErr
	}
	defer func() { _ = resp.Body.Close() }()

	if err := httpclient.CheckResponse(resp); err != nil {
		return nil, &CatalogLoadError{URL: p.url, Status: resp.StatusCode, Err: err}
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxCatalogBytes))
	dec.UseNumber()
	var cats []Category
	if err := dec.Decode(&cats); err != nil {
		return nil, &CatalogLoadError{URL: p.url, Status: resp.StatusCode, Err: fmt.Errorf("decode catalog: %w", err)}
	}
	if cats == nil {
		cats = []Category{}
	}
	for i := range cats {
		if err := validator.Validate(cats[i]); err != nil {
			return nil, &CatalogLoadError{URL: p.url, Status: resp.StatusCode, Err: fmt.Errorf("category %d: %w", i, err)}
		}
	}
	return cats, nil
}

// Ping reports whether a catalog is available, loading it if needed.
func (p *Provider) Ping(ctx context.Context) error {
	_, _, err := p.current(ctx)
	return err
}
