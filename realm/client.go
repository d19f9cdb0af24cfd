// Package realm is the HTTP client for a realm's content server: resolving
// the parcel→active-scene-hash pointer table and a scene's entity manifest
// (§4.E "Inputs: ... realm pointer table (parcel → active scene
// hash)"; step 2 "fetch the scene entity manifest").
//
// This is the one piece of the external "content-addressed asset fetcher"
// collaborator (§1) this module does implement concretely, since the
// realm's catalyst-style content API is public and stable (grounded on
// original_source/crates/common/src/structs.rs's default content server
// URL and crates/emotes's active-entities pointer lookup) — everything
// past "bytes by hash" (asset/fetch.go) still stops at the documented
// boundary.
package realm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coreworld/explorer/errors"
	"github.com/coreworld/explorer/internal/httpclient"
	"github.com/coreworld/explorer/lifecycle"
	"github.com/coreworld/explorer/scene"
)

// Client resolves realm pointers and entity manifests over HTTP.
type Client struct {
	BaseURL string
	client  *httpclient.SaferClient
}

// New creates a Client against a realm's content server base URL (e.g.
// "https://peer.decentraland.org/content", §6's content.server_url
// default target).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		client:  httpclient.NewSaferClient(timeout),
	}
}

type activeEntitiesRequest struct {
	Pointers []string `json:"pointers"`
}

type entityDoc struct {
	ID       string   `json:"id"`
	Pointers []string `json:"pointers"`
	Content  []struct {
		File string `json:"file"`
		Hash string `json:"hash"`
	} `json:"content"`
	Metadata struct {
		Main string `json:"main"`
	} `json:"metadata"`
}

func encodePointer(p scene.Parcel) string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

func decodePointer(s string) (scene.Parcel, bool) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return scene.Parcel{}, false
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return scene.Parcel{}, false
	}
	return scene.Parcel{X: int32(x), Y: int32(y)}, true
}

// Pointers resolves the desired parcel set to active scene hashes via the
// catalyst "entities/active" endpoint (§4.E step 1/2).
func (c *Client) Pointers(ctx context.Context, parcels []scene.Parcel) (map[scene.Parcel]string, error) {
	pointers := make([]string, len(parcels))
	for i, p := range parcels {
		pointers[i] = encodePointer(p)
	}

	body, err := json.Marshal(activeEntitiesRequest{Pointers: pointers})
	if err != nil {
		return nil, errors.Wrap(err, "encode active entities request")
	}

	url := c.BaseURL + "/entities/active"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build active entities request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch active entities from %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("active entities request returned %d", resp.StatusCode)
	}

	var docs []entityDoc
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, errors.Wrap(err, "decode active entities response")
	}

	out := make(map[scene.Parcel]string)
	for _, doc := range docs {
		for _, ptr := range doc.Pointers {
			if parcel, ok := decodePointer(ptr); ok {
				out[parcel] = doc.ID
			}
		}
	}
	return out, nil
}

// Resolve fetches a scene's entity document by content hash and extracts
// the fields lifecycle.Manager needs to spawn its worker (§4.E step 2
// "metadata + content hash table + main script").
func (c *Client) Resolve(ctx context.Context, contentHash string) (lifecycle.Manifest, error) {
	url := c.BaseURL + "/contents/" + contentHash
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return lifecycle.Manifest{}, errors.Wrap(err, "build entity fetch request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return lifecycle.Manifest{}, errors.Wrapf(err, "fetch entity %s", contentHash)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return lifecycle.Manifest{}, errors.Wrap(err, "read entity body")
	}
	if resp.StatusCode != http.StatusOK {
		return lifecycle.Manifest{}, errors.Newf("entity fetch returned %d for %s", resp.StatusCode, contentHash)
	}

	var doc entityDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return lifecycle.Manifest{}, errors.Wrap(err, "decode entity document")
	}

	mainHash := ""
	for _, entry := range doc.Content {
		if entry.File == doc.Metadata.Main {
			mainHash = entry.Hash
			break
		}
	}
	if mainHash == "" {
		return lifecycle.Manifest{}, errors.Newf("entity %s has no content entry matching metadata.main %q", contentHash, doc.Metadata.Main)
	}

	var parcels []scene.Parcel
	var base scene.Parcel
	for i, ptr := range doc.Pointers {
		if p, ok := decodePointer(ptr); ok {
			parcels = append(parcels, p)
			if i == 0 {
				base = p
			}
		}
	}

	return lifecycle.Manifest{
		ContentHash:    doc.ID,
		MainScriptHash: mainHash,
		Metadata:       map[string]string{"main": doc.Metadata.Main},
		ParcelBase:     base,
		Parcels:        parcels,
	}, nil
}
