package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/01moynul/storefront-golang/internal/flash"
	"github.com/01moynul/storefront-golang/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//
// --- Product Handlers (Admin-Only) ---
//

const (
	maxProductName  = 100
	productImageDir = "products"
)

// AddProductInput holds the add-product form. Price and quantity are parsed by hand
// so that malformed numbers get their own notice.
type AddProductInput struct {
	Name        string `form:"name" binding:"required"`
	Description string `form:"description"`
	Price       string `form:"price" binding:"required"`
	Quantity    string `form:"quantity" binding:"required"`
}

// ShowAddProduct is the handler for GET /add-product/
func (h *Handlers) ShowAddProduct(c *gin.Context) {
	h.render(c, "add_product.html", gin.H{"Title": "Add product"})
}

// AddProduct is the handler for POST /add-product/
func (h *Handlers) AddProduct(c *gin.Context) {
	// 1. --- Bind & Validate ---
	var input AddProductInput
	if err := c.ShouldBind(&input); err != nil || strings.TrimSpace(input.Name) == "" {
		flash.Errorf(c, "Please fill in all required fields.")
		h.redirect(c, "/add-product/")
		return
	}
	product := &models.Product{
		Name:      strings.TrimSpace(input.Name),
		CreatedAt: time.Now().UTC(),
	}
	if utf8.RuneCountInString(product.Name) > maxProductName {
		flash.Errorf(c, "Product name must be at most %d characters.", maxProductName)
		h.redirect(c, "/add-product/")
		return
	}

	price, err := decimal.NewFromString(strings.TrimSpace(input.Price))
	if err != nil || price.IsNegative() {
		flash.Errorf(c, "Price must be a non-negative number.")
		h.redirect(c, "/add-product/")
		return
	}
	product.Price = price.Round(2)

	product.Quantity, err = strconv.Atoi(strings.TrimSpace(input.Quantity))
	if err != nil || product.Quantity < 0 {
		flash.Errorf(c, "Quantity must be a non-negative whole number.")
		h.redirect(c, "/add-product/")
		return
	}

	if desc := strings.TrimSpace(input.Description); desc != "" {
		product.Description = &desc
	}

	// 2. --- Optional Image ---
	file, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		flash.Errorf(c, "The image could not be read.")
		h.redirect(c, "/add-product/")
		return
	default:
		image, err := h.saveProductImage(c, file, product.Name)
		if err != nil {
			h.fail(c, "/add-product/", "failed to save product image", err)
			return
		}
		product.Image = &image
	}

	// 3. --- Save to Database ---
	res, err := h.DB.ExecContext(c.Request.Context(), `
		INSERT INTO products (name, description, price, quantity, image, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		product.Name, product.Description, product.Price, product.Quantity, product.Image, product.CreatedAt,
	)
	if err != nil {
		h.fail(c, "/add-product/", "failed to create product", err)
		return
	}
	if product.ID, err = res.LastInsertId(); err != nil {
		h.fail(c, "/add-product/", "failed to read new product id", err)
		return
	}

	h.Log.Info("product added", zap.Int64("product_id", product.ID), zap.String("name", product.Name))
	flash.Successf(c, "Product '%s' added successfully!", product.Name)
	h.redirect(c, "/admin-dashboard/")
}

// saveProductImage stores the upload under the uploads dir and returns its path
// relative to that dir, e.g. "products/blue-widget-<uuid>.png".
func (h *Handlers) saveProductImage(c *gin.Context, file *multipart.FileHeader, name string) (string, error) {
	dir := filepath.Join(h.UploadDir, productImageDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	filename := fmt.Sprintf("%s-%s%s", slug.Make(name), uuid.NewString(), ext)
	if err := c.SaveUploadedFile(file, filepath.Join(dir, filename)); err != nil {
		return "", err
	}
	return productImageDir + "/" + filename, nil
}

const productColumns = "id, name, description, price, quantity, image, created_at"

// listProducts returns the whole catalog in insertion order.
func (h *Handlers) listProducts(ctx context.Context, q Querier) ([]models.Product, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.Image, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// getProduct returns sql.ErrNoRows when the product does not exist.
func (h *Handlers) getProduct(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	var p models.Product
	err := q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.Image, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
