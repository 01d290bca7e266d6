// Package catalog manages product listings, their image sets and the category tree.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"exto/internal/cache"
	"exto/internal/filestore"
	"exto/internal/images"
	"exto/internal/models"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const productTTL = 5 * time.Minute

var (
	ErrProductNotFound = errors.New("product not found")
	ErrForbidden       = errors.New("product belongs to another user")
	ErrUnknownCategory = errors.New("unknown category")
)

// ValidationError carries user-facing messages for a rejected listing or image set.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// ProductInput holds the editable fields of a listing.
type ProductInput struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

type Service struct {
	db     *sql.DB
	cache  *cache.Cache
	files  filestore.Store
	logger zerolog.Logger
}

// NewService builds the catalog service. c may be nil.
func NewService(db *sql.DB, c *cache.Cache, files filestore.Store) *Service {
	return &Service{
		db:     db,
		cache:  c,
		files:  files,
		logger: log.Logger.With().Str("component", "catalog").Logger(),
	}
}

// ValidateUploads runs image validation without persisting anything.
func (s *Service) ValidateUploads(uploads []*images.UploadedFile) images.ValidationResult {
	return images.ValidateImageFiles(uploads)
}

// CreateProduct stores a new listing with the uploaded images. Uploads are
// removed from the file store when the listing is rejected.
func (s *Service) CreateProduct(ctx context.Context, userID int64, in ProductInput, uploads []*images.UploadedFile) (*models.Product, error) {
	in, err := s.checkInput(in)
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, err
	}
	imgs, err := s.acceptUploads(ctx, nil, uploads)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	product := &models.Product{
		UserID:      userID,
		Category:    in.Category,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Images:      imgs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO products (user_id, category, title, description, price, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, in.Category, in.Title, in.Description, in.Price, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		if product.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("product id: %w", err)
		}
		return insertImages(ctx, tx, product.ID, imgs)
	})
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, err
	}
	s.invalidate(ctx, product.ID)
	return product, nil
}

// UpdateProduct replaces the listing fields and reconciles its images. keep lists
// the existing image references to retain, in display order; nil keeps them all.
// Images dropped from the set are removed from the file store after the update commits.
func (s *Service) UpdateProduct(ctx context.Context, userID, productID int64, in ProductInput, keep []string, uploads []*images.UploadedFile) (*models.Product, error) {
	current, err := s.ownedProduct(ctx, userID, productID)
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, err
	}
	in, err = s.checkInput(in)
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, err
	}
	kept, err := selectKept(current.Images, keep)
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, err
	}
	imgs, err := s.acceptUploads(ctx, kept, uploads)
	if err != nil {
		return nil, err
	}
	removed := images.FindImagesToDelete(current.Images, imgs)

	now := time.Now().UTC()
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET category = ?, title = ?, description = ?, price = ?, updated_at = ? WHERE id = ?`,
			in.Category, in.Title, in.Description, in.Price, now, productID,
		); err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = ?`, productID); err != nil {
			return fmt.Errorf("clear images: %w", err)
		}
		return insertImages(ctx, tx, productID, imgs)
	})
	if err != nil {
		s.discardUploads(ctx, uploads)
		return nil, err
	}
	s.removeFiles(ctx, images.Paths(removed))
	s.invalidate(ctx, productID)

	current.Category = in.Category
	current.Title = in.Title
	current.Description = in.Description
	current.Price = in.Price
	current.Images = imgs
	current.UpdatedAt = now
	return current, nil
}

// DeleteProduct removes a listing owned by userID together with its image files.
func (s *Service) DeleteProduct(ctx context.Context, userID, productID int64) error {
	current, err := s.ownedProduct(ctx, userID, productID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.removeFiles(ctx, images.Paths(current.Images))
	s.invalidate(ctx, productID)
	return nil
}

// GetProduct loads a listing through the cache.
func (s *Service) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	return cache.Remember(ctx, s.cache, fmt.Sprintf("product:%d", productID), productTTL, func(ctx context.Context) (*models.Product, error) {
		return s.loadProduct(ctx, productID)
	})
}

// ListByCategory returns the listings of a category and all of its subcategories,
// newest first.
func (s *Service) ListByCategory(ctx context.Context, slug string) ([]models.Product, error) {
	tree, err := s.Categories(ctx)
	if err != nil {
		return nil, err
	}
	category, ok := FindCategory(tree, slug)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCategory, slug)
	}
	return cache.Remember(ctx, s.cache, "products:category:"+slug, productTTL, func(ctx context.Context) ([]models.Product, error) {
		members := slugs(category)
		args := make([]any, 0, len(members))
		for _, m := range members {
			args = append(args, m)
		}
		return s.queryProducts(ctx,
			`SELECT id, user_id, category, title, description, price, created_at, updated_at FROM products
			 WHERE category IN (`+placeholders(len(members))+`) ORDER BY updated_at DESC, id DESC`, args...)
	})
}

// ListByUser returns the listings owned by userID, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]models.Product, error) {
	return s.queryProducts(ctx,
		`SELECT id, user_id, category, title, description, price, created_at, updated_at FROM products
		 WHERE user_id = ? ORDER BY updated_at DESC, id DESC`, userID)
}

// RemoveFiles deletes stored image files and drops listing caches. Used after
// an account removal cascaded through the database.
func (s *Service) RemoveFiles(ctx context.Context, refs []string) {
	s.removeFiles(ctx, images.ToPaths(refs))
	s.cache.ClearPattern(ctx, "products:*")
	s.cache.ClearPattern(ctx, "product:*")
}

// RemoveUploads deletes stored upload files that will not be attached to a listing.
func (s *Service) RemoveUploads(ctx context.Context, uploads []*images.UploadedFile) {
	s.discardUploads(ctx, uploads)
}

func (s *Service) checkInput(in ProductInput) (ProductInput, error) {
	in.Category = strings.TrimSpace(in.Category)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	var msgs []string
	if in.Title == "" {
		msgs = append(msgs, "title is required")
	}
	if _, ok := FindCategory(categoryTree, in.Category); !ok {
		msgs = append(msgs, fmt.Sprintf("unknown category %q", in.Category))
	}
	if in.Price < 0 {
		msgs = append(msgs, "price cannot be negative")
	}
	if len(msgs) > 0 {
		return in, &ValidationError{Messages: msgs}
	}
	return in, nil
}

// acceptUploads validates uploads and combines them with existing. Every upload is
// discarded when the result is invalid.
func (s *Service) acceptUploads(ctx context.Context, existing []images.ImageDescriptor, uploads []*images.UploadedFile) ([]images.ImageDescriptor, error) {
	validated := images.ValidateImageFiles(uploads)
	if !validated.Valid {
		s.discardUploads(ctx, uploads)
		return nil, &ValidationError{Messages: validated.Errors}
	}
	combined := images.CombineImages(existing, validated.Images)
	if !combined.Valid {
		s.discardUploads(ctx, uploads)
		return nil, &ValidationError{Messages: combined.Errors}
	}
	return combined.Images, nil
}

// selectKept maps keep onto the product's current images.
func selectKept(current []images.ImageDescriptor, keep []string) ([]images.ImageDescriptor, error) {
	if keep == nil {
		return current, nil
	}
	byRef := make(map[string]images.ImageDescriptor, len(current))
	for _, img := range current {
		byRef[strings.TrimSpace(img.Path)] = img
	}
	kept := make([]images.ImageDescriptor, 0, len(keep))
	var msgs []string
	for _, ref := range keep {
		img, ok := byRef[strings.TrimSpace(ref)]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("image %q does not belong to this product", ref))
			continue
		}
		kept = append(kept, img)
	}
	if len(msgs) > 0 {
		return nil, &ValidationError{Messages: msgs}
	}
	return kept, nil
}

func (s *Service) discardUploads(ctx context.Context, uploads []*images.UploadedFile) {
	refs := make([]images.Path, 0, len(uploads))
	for _, f := range uploads {
		if f == nil || f.Filename == "" || f.Path == "" {
			continue
		}
		refs = append(refs, images.Path(uploadRef(f)))
	}
	s.removeFiles(ctx, refs)
}

// uploadRef is the reference validation would assign to f.
func uploadRef(f *images.UploadedFile) string {
	lower := strings.ToLower(f.Path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return f.Path
	}
	return images.UploadPrefix + f.Filename
}

func (s *Service) removeFiles(ctx context.Context, refs []images.Path) {
	if s.files == nil {
		return
	}
	for _, ref := range refs {
		if err := s.files.Delete(ctx, string(ref)); err != nil {
			s.logger.Warn().Err(err).Str("ref", string(ref)).Msg("remove image file failed")
		}
	}
}

func (s *Service) invalidate(ctx context.Context, productID int64) {
	s.cache.Delete(ctx, fmt.Sprintf("product:%d", productID))
	s.cache.ClearPattern(ctx, "products:*")
}

func (s *Service) ownedProduct(ctx context.Context, userID, productID int64) (*models.Product, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.UserID != userID {
		return nil, ErrForbidden
	}
	return product, nil
}

func (s *Service) loadProduct(ctx context.Context, productID int64) (*models.Product, error) {
	products, err := s.queryProducts(ctx,
		`SELECT id, user_id, category, title, description, price, created_at, updated_at FROM products WHERE id = ?`, productID)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, ErrProductNotFound
	}
	return &products[0], nil
}

func (s *Service) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	products := []models.Product{}
	index := map[int64]int{}
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Category, &p.Title, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Images = []images.ImageDescriptor{}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	rows.Close()
	if len(products) == 0 {
		return products, nil
	}

	ids := make([]any, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	imgRows, err := s.db.QueryContext(ctx,
		`SELECT product_id, path, file_name, size, mime_type, original_name FROM product_images
		 WHERE product_id IN (`+placeholders(len(ids))+`) ORDER BY product_id, position`, ids...)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer imgRows.Close()
	for imgRows.Next() {
		var productID int64
		var img images.ImageDescriptor
		if err := imgRows.Scan(&productID, &img.Path, &img.Filename, &img.Size, &img.Mimetype, &img.OriginalName); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		if i, ok := index[productID]; ok {
			products[i].Images = append(products[i].Images, img)
		}
	}
	if err := imgRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return products, nil
}

func insertImages(ctx context.Context, tx *sql.Tx, productID int64, imgs []images.ImageDescriptor) error {
	for i, img := range imgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO product_images (product_id, position, path, path_key, file_name, size, mime_type, original_name) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			productID, i, img.Path, images.NormalizeRef(img.Path), img.Filename, img.Size, img.Mimetype, img.OriginalName,
		); err != nil {
			return fmt.Errorf("insert image: %w", err)
		}
	}
	return nil
}

func (s *Service) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
