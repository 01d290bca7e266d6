package catalog

import (
	"context"
	"time"

	"exto/internal/cache"
	"exto/internal/models"
)

const (
	categoriesCacheKey = "categories:tree"
	categoriesTTL      = 24 * time.Hour
)

var categoryTree = []models.Category{
	{Slug: "electronics", Name: "Electronics", Children: []models.Category{
		{Slug: "phones", Name: "Phones"},
		{Slug: "laptops", Name: "Laptops"},
		{Slug: "audio", Name: "Audio"},
	}},
	{Slug: "home", Name: "Home & Garden", Children: []models.Category{
		{Slug: "furniture", Name: "Furniture"},
		{Slug: "appliances", Name: "Appliances"},
	}},
	{Slug: "transport", Name: "Transport", Children: []models.Category{
		{Slug: "cars", Name: "Cars"},
		{Slug: "bicycles", Name: "Bicycles"},
	}},
	{Slug: "clothing", Name: "Clothing"},
	{Slug: "services", Name: "Services"},
}

// Categories returns the category tree.
func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	return cache.Remember(ctx, s.cache, categoriesCacheKey, categoriesTTL, func(context.Context) ([]models.Category, error) {
		return categoryTree, nil
	})
}

// FindCategory looks a slug up anywhere in the tree.
func FindCategory(tree []models.Category, slug string) (models.Category, bool) {
	for _, c := range tree {
		if c.Slug == slug {
			return c, true
		}
		if found, ok := FindCategory(c.Children, slug); ok {
			return found, true
		}
	}
	return models.Category{}, false
}

// Flatten lists every node of tree depth-first, parents before children.
func Flatten(tree []models.Category) []models.Category {
	var out []models.Category
	for _, c := range tree {
		out = append(out, models.Category{Slug: c.Slug, Name: c.Name})
		out = append(out, Flatten(c.Children)...)
	}
	return out
}

func slugs(c models.Category) []string {
	all := Flatten([]models.Category{c})
	out := make([]string, 0, len(all))
	for _, n := range all {
		out = append(out, n.Slug)
	}
	return out
}
