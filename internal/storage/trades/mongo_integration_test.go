//go:build integration

package trades

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Requires a running MongoDB, e.g. MONGODB_URI=mongodb://localhost:27017 go test -tags integration ./...
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI is not set")
	}

	db := fmt.Sprintf("moexfolio_test_%d", time.Now().UnixNano())
	s, err := NewMongoStore(context.Background(), zap.NewNop(), uri, db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Database(db).Drop(context.Background())
	})

	testStore(t, s)
}
