package intake

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/acquire-pipeline/internal/config"
	"github.com/sells-group/acquire-pipeline/internal/faults"
)

const sampleCSV = "listing_id,title,description\nl-1,First,First listing text\nl-2,Second,Second listing text\n"

func testClient(source string) *Client {
	return New(config.IntakeConfig{HTTPTimeoutSecs: 5, FTPTimeoutSecs: 5}, source)
}

func TestFetch_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	listings, err := testClient("marketplace").Fetch(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, "marketplace:l-1", listings[0].BusinessID())
}

func TestFetch_LocalXLSX(t *testing.T) {
	data := buildXLSX(t, [][]string{
		{"listing_id", "description"},
		{"q-9", "Listing text"},
	})
	path := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	listings, err := testClient("marketplace").Fetch(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "q-9", listings[0].ExternalID)
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	listings, err := testClient("marketplace").Fetch(context.Background(), srv.URL+"/drops/export.csv")
	require.NoError(t, err)
	assert.Len(t, listings, 2)
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient("marketplace").Fetch(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestFetch_Validation(t *testing.T) {
	_, err := testClient("").Fetch(context.Background(), "export.csv")
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	_, err = testClient("marketplace").Fetch(context.Background(), "")
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))

	_, err = testClient("marketplace").Fetch(context.Background(), "gopher://host/file.csv")
	require.Error(t, err)
	assert.True(t, faults.IsValidation(err))
}
