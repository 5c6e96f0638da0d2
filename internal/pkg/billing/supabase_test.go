package billing

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/LocalListings/internal/pkg/entitlements"
)

func TestSupabaseTierPublisherSendsAppMetadata(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "user-1", "app_metadata": {"subscription_tier": "premium"}}`))
	}))
	t.Cleanup(srv.Close)

	pub := NewSupabaseTierPublisher(srv.URL, "service-role-key")
	require.NoError(t, pub.PublishTier(context.Background(), "user-1", entitlements.PlanPremium))

	assert.True(t, strings.HasSuffix(gotPath, "/users/user-1"), "path %q", gotPath)
	assert.Contains(t, gotBody, `"subscription_tier":"premium"`)
}
