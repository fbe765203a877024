package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/cache"
	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/validation"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	supplierListKey = "lists:suppliers"
	articleListKey  = "lists:articles"
)

// Option is an id/name pair used to fill dropdowns.
type Option struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// ArticleOption also carries the catalogue price used to prefill order lines.
type ArticleOption struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CatalogService manages suppliers and articles and serves the cached dropdown lists.
type CatalogService struct {
	db    *gorm.DB
	cache cache.Cache
	ttl   time.Duration
}

func NewCatalogService(db *gorm.DB, c cache.Cache, ttl time.Duration) *CatalogService {
	if c == nil {
		c = cache.NewMemory()
	}
	return &CatalogService{db: db, cache: c, ttl: ttl}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reference lists
// ─────────────────────────────────────────────────────────────────────────────

// SupplierOptions returns all suppliers sorted by name.
func (s *CatalogService) SupplierOptions(ctx context.Context) ([]Option, error) {
	var opts []Option
	if hit, err := s.cache.Get(ctx, supplierListKey, &opts); err == nil && hit {
		return opts, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", supplierListKey).Msg("cache read failed")
	}
	err := s.db.WithContext(ctx).Model(&models.Supplier{}).
		Select("id", "name").Order("name ASC, id ASC").Scan(&opts).Error
	if err != nil {
		return nil, fmt.Errorf("list supplier options: %w", err)
	}
	s.store(ctx, supplierListKey, opts)
	return opts, nil
}

// ArticleOptions returns all articles sorted by name.
func (s *CatalogService) ArticleOptions(ctx context.Context) ([]ArticleOption, error) {
	var opts []ArticleOption
	if hit, err := s.cache.Get(ctx, articleListKey, &opts); err == nil && hit {
		return opts, nil
	} else if err != nil {
		log.Warn().Err(err).Str("key", articleListKey).Msg("cache read failed")
	}
	err := s.db.WithContext(ctx).Model(&models.Article{}).
		Select("id", "name", "unit_price").Order("name ASC, id ASC").Scan(&opts).Error
	if err != nil {
		return nil, fmt.Errorf("list article options: %w", err)
	}
	s.store(ctx, articleListKey, opts)
	return opts, nil
}

// RefreshOptions drops and reloads both cached lists.
func (s *CatalogService) RefreshOptions(ctx context.Context) error {
	s.invalidate(ctx, supplierListKey, articleListKey)
	if _, err := s.SupplierOptions(ctx); err != nil {
		return err
	}
	_, err := s.ArticleOptions(ctx)
	return err
}

func (s *CatalogService) store(ctx context.Context, key string, v any) {
	if err := s.cache.Set(ctx, key, v, s.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (s *CatalogService) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Suppliers
// ─────────────────────────────────────────────────────────────────────────────

// ListSuppliers returns suppliers whose name contains q (all when q is empty).
func (s *CatalogService) ListSuppliers(ctx context.Context, q string) ([]models.Supplier, error) {
	db := s.db.WithContext(ctx)
	if q = strings.TrimSpace(q); q != "" {
		db = db.Where(`LOWER(name) LIKE ? ESCAPE '!'`, containsPattern(q))
	}
	var suppliers []models.Supplier
	if err := db.Order("name ASC, id ASC").Find(&suppliers).Error; err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	return suppliers, nil
}

func (s *CatalogService) GetSupplier(ctx context.Context, id uint) (*models.Supplier, error) {
	var sup models.Supplier
	if err := s.db.WithContext(ctx).First(&sup, id).Error; err != nil {
		return nil, storeError("get supplier", err)
	}
	return &sup, nil
}

// SaveSupplier creates (ID == 0) or updates a supplier after validation.
func (s *CatalogService) SaveSupplier(ctx context.Context, sup *models.Supplier) error {
	sup.Name = strings.TrimSpace(sup.Name)
	sup.Email = strings.TrimSpace(sup.Email)
	if v := validation.Struct(sup); !v.Empty() {
		return invalid(v)
	}
	db := s.db.WithContext(ctx)
	if sup.ID != 0 {
		if _, err := s.GetSupplier(ctx, sup.ID); err != nil {
			return err
		}
		if err := db.Model(sup).Select("name", "address", "phone", "email").Updates(sup).Error; err != nil {
			return storeError("update supplier", err)
		}
	} else if err := db.Create(sup).Error; err != nil {
		return storeError("create supplier", err)
	}
	s.invalidate(ctx, supplierListKey)
	return nil
}

// DeleteSupplier removes a supplier. A supplier referenced by an order yields ErrConstraint.
func (s *CatalogService) DeleteSupplier(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Supplier{}, id)
	if res.Error != nil {
		return storeError("delete supplier", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete supplier %d: %w", id, ErrNotFound)
	}
	s.invalidate(ctx, supplierListKey)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Articles
// ─────────────────────────────────────────────────────────────────────────────

// ListArticles returns articles whose name or description contains q.
func (s *CatalogService) ListArticles(ctx context.Context, q string) ([]models.Article, error) {
	db := s.db.WithContext(ctx)
	if q = strings.TrimSpace(q); q != "" {
		like := containsPattern(q)
		db = db.Where(`LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!'`, like, like)
	}
	var articles []models.Article
	if err := db.Order("name ASC, id ASC").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	return articles, nil
}

func (s *CatalogService) GetArticle(ctx context.Context, id uint) (*models.Article, error) {
	var a models.Article
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, storeError("get article", err)
	}
	return &a, nil
}

// ArticlePrice returns the current catalogue price of an article.
func (s *CatalogService) ArticlePrice(ctx context.Context, id uint) (decimal.Decimal, error) {
	a, err := s.GetArticle(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return a.UnitPrice, nil
}

// SaveArticle creates (ID == 0) or updates an article after validation.
func (s *CatalogService) SaveArticle(ctx context.Context, a *models.Article) error {
	a.Name = strings.TrimSpace(a.Name)
	if v := validation.Struct(a); !v.Empty() {
		return invalid(v)
	}
	db := s.db.WithContext(ctx)
	if a.ID != 0 {
		if _, err := s.GetArticle(ctx, a.ID); err != nil {
			return err
		}
		if err := db.Model(a).Select("name", "description", "unit_price", "stock").Updates(a).Error; err != nil {
			return storeError("update article", err)
		}
	} else if err := db.Create(a).Error; err != nil {
		return storeError("create article", err)
	}
	s.invalidate(ctx, articleListKey)
	return nil
}

// DeleteArticle removes an article. An article used by an order line yields ErrConstraint.
func (s *CatalogService) DeleteArticle(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Article{}, id)
	if res.Error != nil {
		return storeError("delete article", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete article %d: %w", id, ErrNotFound)
	}
	s.invalidate(ctx, articleListKey)
	return nil
}

// IsInUse reports whether err is a restrict-delete or uniqueness failure.
func IsInUse(err error) bool {
	return errors.Is(err, ErrConstraint)
}
