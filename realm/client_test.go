package realm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreworld/explorer/internal/httpclient"
	"github.com/coreworld/explorer/scene"
)

func allowLocalhost(c *Client) {
	c.client = httpclient.WrapClient(c.client.Client)
}

func TestPointers_ResolvesParcelToHashMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entities/active", r.URL.Path)
		var req activeEntitiesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"0,0", "1,0"}, req.Pointers)

		docs := []entityDoc{
			{ID: "hash-1", Pointers: []string{"0,0"}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(docs))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	allowLocalhost(c)

	out, err := c.Pointers(context.Background(), []scene.Parcel{{X: 0, Y: 0}, {X: 1, Y: 0}})
	require.NoError(t, err)
	assert.Equal(t, map[scene.Parcel]string{{X: 0, Y: 0}: "hash-1"}, out)
}

func TestResolve_ExtractsMainScriptHashAndParcels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contents/hash-1", r.URL.Path)
		doc := entityDoc{
			ID:       "hash-1",
			Pointers: []string{"2,3"},
			Content: []struct {
				File string `json:"file"`
				Hash string `json:"hash"`
			}{
				{File: "game.js", Hash: "script-hash"},
				{File: "scene.json", Hash: "meta-hash"},
			},
		}
		doc.Metadata.Main = "game.js"
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	allowLocalhost(c)

	manifest, err := c.Resolve(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", manifest.ContentHash)
	assert.Equal(t, "script-hash", manifest.MainScriptHash)
	assert.Equal(t, scene.Parcel{X: 2, Y: 3}, manifest.ParcelBase)
	assert.Equal(t, []scene.Parcel{{X: 2, Y: 3}}, manifest.Parcels)
}

func TestResolve_ErrorsWhenMainContentEntryMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := entityDoc{ID: "hash-1"}
		doc.Metadata.Main = "missing.js"
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	allowLocalhost(c)

	_, err := c.Resolve(context.Background(), "hash-1")
	assert.Error(t, err)
}
