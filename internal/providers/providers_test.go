package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
	"github.com/ZanzyTHEbar/claimiq/internal/types"
)

func newMockedClient(t *testing.T, name, baseURL string) *resilience.ProviderClient {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	return resilience.NewProviderClient(resilience.ProviderConfig{
		Name:    name,
		BaseURL: baseURL,
		APIKey:  "secret",
		Retry:   resilience.NoRetry(),
	}, resilience.WithHTTPClient(httpClient))
}

func TestDetectorClient_Detect(t *testing.T) {
	client := newMockedClient(t, "detector", "http://detector.local")
	annotated := []byte{0xFF, 0xD8, 0xFF, 0x00}

	httpmock.RegisterResponder(http.MethodPost, "http://detector.local/detect",
		func(req *http.Request) (*http.Response, error) {
			var body detectRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			assert.Equal(t, "claims/a.jpg", body.ImageURL)
			assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))

			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"image_width":  640,
				"image_height": 480,
				"detections": []map[string]any{
					{"class_name": "scratch", "confidence": 0.9, "bbox": []float64{10, 10, 50, 50}, "area_ratio": 0.05, "zone": "Front"},
					{"class_name": "dent", "confidence": 1.4, "bbox": []float64{500, 10, 600, 60}, "area_ratio": -0.2, "zone": nil},
				},
				"annotated_image": base64.StdEncoding.EncodeToString(annotated),
			})
		})

	result, err := NewDetectorClient(client).Detect(context.Background(), "claims/a.jpg")
	require.NoError(t, err)

	assert.Equal(t, "claims/a.jpg", result.ImageRef)
	assert.Equal(t, 640, result.ImageWidth)
	assert.Equal(t, 480, result.ImageHeight)
	assert.Equal(t, annotated, result.AnnotatedImage)
	require.Len(t, result.Detections, 2)
	assert.Equal(t, types.ZoneFront, result.Detections[0].Zone)
	assert.Equal(t, types.Zone(""), result.Detections[1].Zone)
	assert.Equal(t, 1.0, result.Detections[1].Confidence)
	assert.Equal(t, 0.0, result.Detections[1].AreaRatio)
}

func TestDetectorClient_Failure(t *testing.T) {
	client := newMockedClient(t, "detector", "http://detector.local")
	httpmock.RegisterResponder(http.MethodPost, "http://detector.local/detect",
		httpmock.NewStringResponder(http.StatusBadRequest, "bad image"))

	_, err := NewDetectorClient(client).Detect(context.Background(), "claims/a.jpg")
	require.Error(t, err)
	var httpErr *resilience.HTTPError
	assert.ErrorAs(t, err, &httpErr)
}

func TestEmbedderClient_Embed(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		available bool
	}{
		{
			name:      "embedding returned",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{"embedding": []float64{0.1, 0.2}}),
			available: true,
		},
		{
			name:      "empty embedding",
			responder: httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{"embedding": []float64{}}),
		},
		{
			name:      "service error",
			responder: httpmock.NewStringResponder(http.StatusBadRequest, "unsupported"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newMockedClient(t, "embedder", "http://embedder.local")
			httpmock.RegisterResponder(http.MethodPost, "http://embedder.local/embed", tt.responder)

			signal := NewEmbedderClient(client).Embed(context.Background(), []byte("img"))
			assert.Equal(t, tt.available, signal.IsAvailable())
			if !tt.available {
				assert.NotEmpty(t, signal.Reason())
			}
		})
	}
}

func TestExplainerClient_Explain(t *testing.T) {
	client := newMockedClient(t, "explainer", "http://llm.local/v1")

	var captured chatRequest
	httpmock.RegisterResponder(http.MethodPost, "http://llm.local/v1/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"content": "  Front bumper scratched.  "}}},
			})
		})

	signal := NewExplainerClient(client, "").Explain(context.Background(), ExplainRequest{
		ImageRefs:   []string{"https://cdn.local/a.jpg"},
		Entries:     []types.DamageZoneEntry{{Zone: types.ZoneFront, Severity: types.SeverityMinor, Confidence: 0.9}},
		Description: "parking lot",
	})

	text, ok := signal.Get()
	require.True(t, ok)
	assert.Equal(t, "Front bumper scratched.", text)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
}

func TestExplainerClient_EmptyCompletion(t *testing.T) {
	client := newMockedClient(t, "explainer", "http://llm.local/v1")
	httpmock.RegisterResponder(http.MethodPost, "http://llm.local/v1/chat/completions",
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{"choices": []any{}}))

	signal := NewExplainerClient(client, "gpt-4o").Explain(context.Background(), ExplainRequest{})
	assert.False(t, signal.IsAvailable())
}

func TestExplainPrompt(t *testing.T) {
	prompt := explainPrompt(ExplainRequest{
		Entries: []types.DamageZoneEntry{
			{Zone: types.ZoneFront, Severity: types.SeverityModerate, Confidence: 0.9},
			{Zone: types.ZoneRear, Severity: types.SeveritySevere, Confidence: 0.66},
		},
	})
	assert.Contains(t, prompt, "Detected damage zones: Front (moderate, 90%), Rear (severe, 66%)")
	assert.NotContains(t, prompt, "User description")
}

func TestImageFetcher(t *testing.T) {
	client := newMockedClient(t, "images", "http://storage.local")
	httpmock.RegisterResponder(http.MethodGet, "http://storage.local/claims/a.jpg",
		httpmock.NewBytesResponder(http.StatusOK, []byte{1, 2, 3}))
	httpmock.RegisterResponder(http.MethodGet, "https://cdn.local/b.jpg",
		httpmock.NewBytesResponder(http.StatusOK, []byte{4}))
	httpmock.RegisterResponder(http.MethodGet, "http://storage.local/claims/empty.jpg",
		httpmock.NewBytesResponder(http.StatusOK, nil))

	fetcher := NewImageFetcher(client)

	data, err := fetcher.Fetch(context.Background(), "claims/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	data, err = fetcher.Fetch(context.Background(), "https://cdn.local/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, data)

	_, err = fetcher.Fetch(context.Background(), "claims/empty.jpg")
	assert.Error(t, err)
}

func TestObjectStore_UploadAnnotated(t *testing.T) {
	client := newMockedClient(t, "storage", "http://storage.local")
	httpmock.RegisterResponder(http.MethodPut, "http://storage.local/annotated/claim-1/0.jpg",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "image/jpeg", req.Header.Get("Content-Type"))
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		})

	ref, err := NewObjectStore(client, "https://cdn.local/").UploadAnnotated(context.Background(), "claim-1", 0, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.local/annotated/claim-1/0.jpg", ref)
}
