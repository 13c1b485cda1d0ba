package enrich

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	got, err := Noop{}.Classify(context.Background(), []Entry{
		{Description: "Coffee Shop"},
		{Description: "Salary"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Merchant)
}

func TestHTTPClassifier(t *testing.T) {
	t.Run("round trips the batch", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Entries []Entry `json:"entries"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Entries, 1)
			assert.Equal(t, "SQ *BLUE BOTTLE", req.Entries[0].Description)

			resp := map[string][]Suggestion{
				"suggestions": {{Merchant: "Blue Bottle Coffee", Category: "Dining", Confidence: 0.92}},
			}
			require.NoError(t, json.NewEncoder(w).Encode(resp))
		}))
		defer srv.Close()

		c := NewHTTPClassifier(srv.URL, time.Second)
		got, err := c.Classify(context.Background(), []Entry{{Description: "SQ *BLUE BOTTLE", HeuristicMerchant: "BLUE BOTTLE"}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Blue Bottle Coffee", got[0].Merchant)
		assert.InDelta(t, 0.92, got[0].Confidence, 0.001)
	})

	t.Run("length mismatch is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"suggestions":[]}`))
		}))
		defer srv.Close()

		c := NewHTTPClassifier(srv.URL, time.Second)
		_, err := c.Classify(context.Background(), []Entry{{Description: "x"}})
		assert.Error(t, err)
	})

	t.Run("non-200 is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewHTTPClassifier(srv.URL, time.Second)
		_, err := c.Classify(context.Background(), []Entry{{Description: "x"}})
		assert.Error(t, err)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The server only watches for a client disconnect (which
			// cancels r.Context()) once the request body is consumed.
			_, _ = io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		}))
		defer srv.Close()

		c := NewHTTPClassifier(srv.URL, 10*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := c.Classify(ctx, []Entry{{Description: "x"}})
		assert.Error(t, err)
	})
}
