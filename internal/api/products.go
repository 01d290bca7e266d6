package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"exto/internal/images"
	"exto/internal/service/catalog"
)

const (
	imagesField = "images"
	// multipart overhead on top of a full image batch
	maxFormBytes = images.MaxImages*images.MaxFileSize + 1<<20
)

func (h *Handler) listCategories(c *gin.Context) {
	tree, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": tree})
}

func (h *Handler) listCategoryProducts(c *gin.Context) {
	products, err := h.catalog.ListByCategory(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product":  product,
		"previews": images.CreateImagePreview(product.Images),
	})
}

func (h *Handler) listMyProducts(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	products, err := h.catalog.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	in, ok := h.productForm(c)
	if !ok {
		return
	}
	uploads, err := h.storeUploads(c.Request.Context(), formFiles(c))
	if err != nil {
		h.internalError(c, err)
		return
	}
	product, err := h.catalog.CreateProduct(c.Request.Context(), userID, in, uploads)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (h *Handler) updateProduct(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	in, ok := h.productForm(c)
	if !ok {
		return
	}
	var keep []string
	if values, present := c.GetPostFormArray("keep_images"); present {
		keep = make([]string, 0, len(values))
		for _, v := range values {
			if strings.TrimSpace(v) != "" {
				keep = append(keep, v)
			}
		}
	}
	uploads, err := h.storeUploads(c.Request.Context(), formFiles(c))
	if err != nil {
		h.internalError(c, err)
		return
	}
	product, err := h.catalog.UpdateProduct(c.Request.Context(), userID, productID, in, keep, uploads)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (h *Handler) deleteProduct(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}
	if err := h.catalog.DeleteProduct(c.Request.Context(), userID, productID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// validateImages checks an upload batch without storing it.
func (h *Handler) validateImages(c *gin.Context) {
	if _, ok := h.authorizedUserID(c); !ok {
		return
	}
	if err := c.Request.ParseMultipartForm(maxFormBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	headers := formFiles(c)
	files := make([]*images.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(fh.Filename)
		files = append(files, &images.UploadedFile{
			Filename:     name,
			Size:         fh.Size,
			Mimetype:     sniffHeader(fh),
			Path:         name,
			OriginalName: fh.Filename,
		})
	}
	result := h.catalog.ValidateUploads(files)
	c.JSON(http.StatusOK, gin.H{
		"validation": result,
		"previews":   images.CreateImagePreview(result.Images),
	})
}

func (h *Handler) productForm(c *gin.Context) (catalog.ProductInput, bool) {
	if err := c.Request.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return catalog.ProductInput{}, false
	}
	in := catalog.ProductInput{
		Category:    c.PostForm("category"),
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
	}
	if raw := strings.TrimSpace(c.PostForm("price")); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
			return catalog.ProductInput{}, false
		}
		in.Price = price
	}
	return in, true
}

func formFiles(c *gin.Context) []*multipart.FileHeader {
	if c.Request.MultipartForm == nil {
		return nil
	}
	return c.Request.MultipartForm.File[imagesField]
}

// storeUploads persists the files that can pass validation and describes every
// file for the validator. Oversized or mistyped files and batches over the limit
// are described but never written.
func (h *Handler) storeUploads(ctx context.Context, headers []*multipart.FileHeader) ([]*images.UploadedFile, error) {
	out := make([]*images.UploadedFile, 0, len(headers))
	store := len(headers) <= images.MaxImages
	for _, fh := range headers {
		file, err := h.storeUpload(ctx, fh, store)
		if err != nil {
			h.catalog.RemoveUploads(ctx, out)
			return nil, err
		}
		out = append(out, file)
	}
	return out, nil
}

func (h *Handler) storeUpload(ctx context.Context, fh *multipart.FileHeader, store bool) (*images.UploadedFile, error) {
	f, err := fh.Open()
	if err != nil {
		// Unreadable parts are reported by the validator as corrupted.
		return &images.UploadedFile{OriginalName: fh.Filename}, nil
	}
	defer f.Close()

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return &images.UploadedFile{OriginalName: fh.Filename}, nil
	}
	contentType := baseType(mt.String())
	name := uuid.NewString() + mt.Extension()
	file := &images.UploadedFile{
		Filename:     name,
		Size:         fh.Size,
		Mimetype:     contentType,
		OriginalName: fh.Filename,
	}
	if !store || fh.Size > images.MaxFileSize || !allowedType(contentType) {
		return file, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}
	path, err := h.files.Save(ctx, name, f, contentType)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	file.Path = path
	return file, nil
}

func sniffHeader(fh *multipart.FileHeader) string {
	f, err := fh.Open()
	if err != nil {
		return ""
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return ""
	}
	return baseType(mt.String())
}

func baseType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(base)
}

func allowedType(contentType string) bool {
	for _, t := range images.AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
