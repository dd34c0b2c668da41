package tax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-cart/internal/money"
	"github.com/noah-isme/toko-cart/internal/resilience"
	"github.com/noah-isme/toko-cart/internal/storage"
)

// Source supplies the current tax settings. A nil result with a nil error
// means no tax is configured.
type Source interface {
	Settings(ctx context.Context) (*Settings, error)
}

// StaticSource returns fixed settings, typically parsed from configuration.
type StaticSource struct {
	settings *Settings
}

// NewStaticSource wraps settings, which may be nil.
func NewStaticSource(settings *Settings) StaticSource {
	return StaticSource{settings: settings}
}

// Settings implements Source. Callers receive their own copy.
func (s StaticSource) Settings(context.Context) (*Settings, error) {
	return s.settings.clone(), nil
}

// HTTPSource fetches settings from the storefront configuration service.
// The endpoint answers with a settings document, a JSON null, or 204.
type HTTPSource struct {
	URL    string
	Client resilience.Doer
}

// Settings implements Source.
func (s HTTPSource) Settings(ctx context.Context) (*Settings, error) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, errors.New("tax: settings url not configured")
	}
	client := s.Client
	if client == nil {
		client = resilience.HTTPClient{}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch tax settings: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch tax settings: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tax settings: %w", err)
	}
	var out *Settings
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode tax settings: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

type cachedSettings struct {
	Settings *Settings `json:"settings"`
}

// CachedSource memoises another source in shared storage so sessions do not
// each hit the configuration service. Storage failures fall through to the
// upstream source.
type CachedSource struct {
	Source Source
	Store  storage.Store
	Key    string
	Logger zerolog.Logger
}

// Settings implements Source.
func (c CachedSource) Settings(ctx context.Context) (*Settings, error) {
	if c.Store != nil && c.Key != "" {
		var cached cachedSettings
		ok, err := c.Store.Load(ctx, c.Key, &cached)
		switch {
		case err != nil:
			c.Logger.Warn().Err(err).Str("key", c.Key).Msg("tax settings cache read failed")
		case ok && cached.Settings.Validate() == nil:
			return cached.Settings, nil
		}
	}
	if c.Source == nil {
		return nil, nil
	}
	settings, err := c.Source.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if c.Store != nil && c.Key != "" {
		if err := c.Store.Save(ctx, c.Key, cachedSettings{Settings: settings}); err != nil {
			c.Logger.Warn().Err(err).Str("key", c.Key).Msg("tax settings cache write failed")
		}
	}
	return settings, nil
}

func (s *Settings) clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	if s.CurrencyOverrides != nil {
		out.CurrencyOverrides = make(map[money.Currency]decimal.Decimal, len(s.CurrencyOverrides))
		for k, v := range s.CurrencyOverrides {
			out.CurrencyOverrides[k] = v
		}
	}
	return &out
}
