package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/charcord/internal/domain"
)

// Catalog is a read-only character-card directory used to spawn personas on
// stateless backends: the card supplies the definition and greeting that seed
// local history.
type Catalog struct {
	client  *http.Client
	baseURL string
}

// NewCatalog creates a catalog client.
func NewCatalog(baseURL string) *Catalog {
	return &Catalog{
		client:  &http.Client{Timeout: 20 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

type catalogSearchResponse struct {
	Characters []domain.CharacterCard `json:"characters"`
}

// SearchCharacters queries the catalog. The backend type on the wire is
// immaterial; catalog failures are reported as rejected lookups.
func (c *Catalog) SearchCharacters(ctx context.Context, query string) ([]domain.CharacterCard, error) {
	searchURL := fmt.Sprintf("%s/characters?q=%s", c.baseURL, url.QueryEscape(query))

	var resp catalogSearchResponse
	if err := doJSON(ctx, c.client, "catalog", http.MethodGet, searchURL, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Characters, nil
}

// GetCharacter fetches one card by id.
func (c *Catalog) GetCharacter(ctx context.Context, id string) (*domain.CharacterCard, error) {
	cardURL := fmt.Sprintf("%s/characters/%s", c.baseURL, url.PathEscape(id))

	var card domain.CharacterCard
	if err := doJSON(ctx, c.client, "catalog", http.MethodGet, cardURL, nil, nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}
