package collaborators

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/RealZimboGuy/leadflow/internal/util"
)

// LogTagger logs labels instead of applying them.
type LogTagger struct{}

func (LogTagger) TagEntity(ctx context.Context, tenantID, entityID, label string) error {
	slog.InfoContext(ctx, "Entity tagged", "tenant", tenantID, "entity_id", entityID, "label", label)
	return nil
}

type TagRequest struct {
	TenantID string `json:"tenantId"`
	EntityID string `json:"entityId"`
	Label    string `json:"label"`
}

// HTTPTagger applies labels through the CRM's tagging endpoint.
type HTTPTagger struct {
	URL        string
	HTTPClient *http.Client
}

func NewHTTPTagger(url string) *HTTPTagger {
	return &HTTPTagger{URL: url, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

func (t *HTTPTagger) TagEntity(ctx context.Context, tenantID, entityID, label string) error {
	_, err := util.PostJSON[struct{}](ctx, t.HTTPClient, t.URL, nil, TagRequest{TenantID: tenantID, EntityID: entityID, Label: label})
	return err
}
