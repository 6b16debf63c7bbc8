package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
)

// ImageFetcher downloads claim images. Relative refs resolve against the
// images provider base URL.
type ImageFetcher struct {
	client *resilience.ProviderClient
}

// NewImageFetcher wraps a provider client pointed at image storage
func NewImageFetcher(client *resilience.ProviderClient) *ImageFetcher {
	return &ImageFetcher{client: client}
}

// Fetch returns the raw bytes behind ref
func (f *ImageFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	data, err := f.client.Do(ctx, resilience.Request{Method: http.MethodGet, Path: ref})
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", ref, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetch image %s: empty body", ref)
	}
	return data, nil
}

// ObjectStore uploads annotated images to object storage
type ObjectStore struct {
	client  *resilience.ProviderClient
	baseURL string
}

// NewObjectStore wraps a provider client pointed at the storage bucket
func NewObjectStore(client *resilience.ProviderClient, baseURL string) *ObjectStore {
	return &ObjectStore{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// UploadAnnotated stores an annotated image and returns its public ref
func (s *ObjectStore) UploadAnnotated(ctx context.Context, claimID string, index int, image []byte) (string, error) {
	path := fmt.Sprintf("annotated/%s/%d.jpg", claimID, index)
	_, err := s.client.Do(ctx, resilience.Request{
		Method:      http.MethodPut,
		Path:        path,
		Body:        image,
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("upload annotated image: %w", err)
	}
	return s.baseURL + "/" + path, nil
}
