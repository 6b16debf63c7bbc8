package providers

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

type embedRequest struct {
	Image string `json:"image"` // base64
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbedderClient calls the image-embedding service
type EmbedderClient struct {
	client *resilience.ProviderClient
}

// NewEmbedderClient wraps a provider client pointed at the embedder
func NewEmbedderClient(client *resilience.ProviderClient) *EmbedderClient {
	return &EmbedderClient{client: client}
}

// Embed returns the image embedding, or an unavailable signal when the
// service fails or returns nothing
func (e *EmbedderClient) Embed(ctx context.Context, image []byte) types.Signal[[]float64] {
	var resp embedResponse
	req := embedRequest{Image: base64.StdEncoding.EncodeToString(image)}
	if err := e.client.DoJSON(ctx, http.MethodPost, "/embed", req, &resp); err != nil {
		return types.Unavailable[[]float64](err.Error())
	}
	if len(resp.Embedding) == 0 {
		return types.Unavailable[[]float64]("empty embedding")
	}
	return types.Available(resp.Embedding)
}
