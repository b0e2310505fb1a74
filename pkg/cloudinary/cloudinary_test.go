package cloudinary

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseAssetURL(t *testing.T) {
	cases := []struct {
		name         string
		url          string
		publicID     string
		resourceType string
	}{
		{"raw with folder", "https://res.cloudinary.com/demo/raw/upload/v1712/antiplagiat/works/12-essay.txt", "antiplagiat/works/12-essay.txt", "raw"},
		{"image drops extension", "https://res.cloudinary.com/demo/image/upload/v1/works/scan.png", "works/scan", "image"},
		{"no version", "https://res.cloudinary.com/demo/raw/upload/3-a.txt", "3-a.txt", "raw"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			publicID, resourceType, err := ParseAssetURL(tc.url)
			require.NoError(t, err)
			require.Equal(t, tc.publicID, publicID)
			require.Equal(t, tc.resourceType, resourceType)
		})
	}
}

func TestParseAssetURLRejectsForeignURL(t *testing.T) {
	_, _, err := ParseAssetURL("https://example.com/files/1")
	require.Error(t, err)
}

func TestBuildPublicIDKeepsExtension(t *testing.T) {
	require.Equal(t, "12-my-essay.txt", BuildPublicID("12-my essay.TXT"))
}

func TestDownloadMapsMissingAsset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/raw/upload/ok.txt" {
			_, _ = w.Write([]byte("content"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	service, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret"}, server.Client(), zerolog.Nop())
	require.NoError(t, err)

	payload, err := service.Download(context.Background(), server.URL+"/raw/upload/ok.txt")
	require.NoError(t, err)
	require.Equal(t, "content", string(payload))

	_, err = service.Download(context.Background(), server.URL+"/raw/upload/gone.txt")
	require.ErrorIs(t, err, ErrAssetNotFound)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, nil, zerolog.Nop())
	require.Error(t, err)
}
