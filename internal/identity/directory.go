package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/store"
)

// HTTPDirectory talks to an institutional directory service over REST.
//
//	GET  {base}/identities/{id}        -> 200 identity | 404
//	POST {base}/credentials/validate   -> 200 identity | 401
type HTTPDirectory struct {
	base   string
	apiKey string
	client *http.Client
}

// NewHTTPDirectory creates a client for the directory at base.
func NewHTTPDirectory(base, apiKey string) *HTTPDirectory {
	return &HTTPDirectory{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type directoryIdentity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document"`
	Kind     string `json:"kind"`
}

func (d directoryIdentity) toBus() *bus.Identity {
	return &bus.Identity{ID: d.ID, Name: d.Name, Document: d.Document, Kind: d.Kind}
}

func (d *HTTPDirectory) FindIdentity(ctx context.Context, identityID string) (*bus.Identity, error) {
	u := d.base + "/identities/" + url.PathEscape(identityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	d.auth(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var di directoryIdentity
		if err := json.NewDecoder(resp.Body).Decode(&di); err != nil {
			return nil, fmt.Errorf("directory lookup: decode: %w", err)
		}
		return di.toBus(), nil
	case http.StatusNotFound:
		return nil, store.ErrNotFound
	default:
		return nil, fmt.Errorf("directory lookup: unexpected status %d", resp.StatusCode)
	}
}

func (d *HTTPDirectory) ValidateCredential(ctx context.Context, credential string) (*bus.Identity, error) {
	body, err := json.Marshal(map[string]string{"credential": credential})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.base+"/credentials/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	d.auth(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential check: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var di directoryIdentity
		if err := json.NewDecoder(resp.Body).Decode(&di); err != nil {
			return nil, fmt.Errorf("credential check: decode: %w", err)
		}
		return di.toBus(), nil
	case http.StatusUnauthorized, http.StatusNotFound:
		return nil, ErrInvalidCredential
	default:
		return nil, fmt.Errorf("credential check: unexpected status %d", resp.StatusCode)
	}
}

func (d *HTTPDirectory) auth(req *http.Request) {
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}
}

// StaticDirectory serves identities from a fixed table, keyed by credential.
// Used in standalone mode and tests where no directory service exists.
type StaticDirectory struct {
	byCredential map[string]bus.Identity
	byID         map[string]bus.Identity
}

// NewStaticDirectory indexes the given identities by document (credential)
// and id.
func NewStaticDirectory(identities []bus.Identity) *StaticDirectory {
	d := &StaticDirectory{
		byCredential: make(map[string]bus.Identity, len(identities)),
		byID:         make(map[string]bus.Identity, len(identities)),
	}
	for _, id := range identities {
		d.byCredential[id.Document] = id
		d.byID[id.ID] = id
	}
	return d
}

func (d *StaticDirectory) FindIdentity(_ context.Context, identityID string) (*bus.Identity, error) {
	id, ok := d.byID[identityID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := id
	return &cp, nil
}

func (d *StaticDirectory) ValidateCredential(_ context.Context, credential string) (*bus.Identity, error) {
	id, ok := d.byCredential[credential]
	if !ok {
		return nil, ErrInvalidCredential
	}
	cp := id
	return &cp, nil
}
