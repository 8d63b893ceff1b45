package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coineda/cache"
	"coineda/portfolio"
)

const (
	// DefaultBaseURL is the public CoinGecko-compatible price API.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// vsCurrency quotes everything in the base fiat unit
	vsCurrency = "eur"

	spotTTL = 15 * time.Minute
	// historical ranges reference immutable past data
	rangeTTL = 0

	// lookahead is the window queried after a historical timestamp; the
	// first sample inside it is the price at that timestamp
	lookahead = 5 * time.Hour

	grabRetries = 3
)

// ErrRateLimited reports the remote provider pushing back; callers may retry
// after a pause instead of treating the price as missing.
var ErrRateLimited = errors.New("price provider rate limited")

// ErrUnavailable reports a provider or network failure.
var ErrUnavailable = errors.New("price temporarily unavailable")

// Oracle supplies spot and historical prices for canonical asset ids in the
// base fiat currency, caching through an injected cache capability.
type Oracle struct {
	BaseURL string
	Client  *http.Client

	cache cache.Cache
	log   zerolog.Logger
}

func NewOracle(c cache.Cache, log zerolog.Logger) *Oracle {
	return &Oracle{
		BaseURL: DefaultBaseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
		cache:   c,
		log:     log,
	}
}

// CurrentPrice returns the spot price of one asset in the base fiat unit.
func (o *Oracle) CurrentPrice(ctx context.Context, assetID string) (float64, error) {
	prices, err := o.CurrentPrices(ctx, []string{assetID})
	if err != nil {
		return 0, err
	}
	p, ok := prices[assetID]
	if !ok {
		return 0, fmt.Errorf("%s: %w", assetID, ErrUnavailable)
	}
	return p, nil
}

// CurrentPrices returns spot prices for many asset ids at once. Cached
// entries are served without a request; only the misses go out.
func (o *Oracle) CurrentPrices(ctx context.Context, assetIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(assetIDs))
	var missing []string
	for _, id := range assetIDs {
		if id == portfolio.BaseCurrency {
			out[id] = 1
			continue
		}
		if v, ok := o.cache.Get("simple-price-" + id); ok {
			p, err := strconv.ParseFloat(v, 64)
			if err == nil {
				out[id] = p
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(missing, ","))
	q.Set("vs_currencies", vsCurrency)
	var resp map[string]map[string]float64
	if err := o.get(ctx, o.BaseURL+"/simple/price?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	for _, id := range missing {
		quote, ok := resp[id]
		if !ok {
			return nil, fmt.Errorf("%s: %w", id, ErrUnavailable)
		}
		p := quote[vsCurrency]
		out[id] = p
		o.cache.Set("simple-price-"+id, strconv.FormatFloat(p, 'g', -1, 64), spotTTL)
	}
	return out, nil
}

// PriceAt returns the price of an asset at a past moment. The provider is
// queried for the window [at, at+5h] and the first sample wins.
func (o *Oracle) PriceAt(ctx context.Context, assetID string, at time.Time) (float64, error) {
	if assetID == portfolio.BaseCurrency {
		return 1, nil
	}

	from := at.Unix()
	to := at.Add(lookahead).Unix()
	key := fmt.Sprintf("%d-%d-%s", from, to, assetID)
	if v, ok := o.cache.Get(key); ok {
		if p, err := strconv.ParseFloat(v, 64); err == nil {
			return p, nil
		}
	}

	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))
	var resp struct {
		Prices [][2]float64 `json:"prices"`
	}
	u := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", o.BaseURL, assetID, q.Encode())
	if err := o.get(ctx, u, &resp); err != nil {
		return 0, err
	}
	if len(resp.Prices) == 0 {
		return 0, fmt.Errorf("%s at %s: %w", assetID, at.Format(time.RFC3339), ErrUnavailable)
	}

	p := resp.Prices[0][1]
	o.cache.Set(key, strconv.FormatFloat(p, 'g', -1, 64), rangeTTL)
	return p, nil
}

func (o *Oracle) get(ctx context.Context, url string, into any) error {
	var lastErr error
	for attempt := 0; attempt < grabRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := o.Client.Do(req)
		if err != nil {
			o.log.Warn().Err(err).Str("url", url).Msg("price request failed")
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return ErrRateLimited
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}

		if err := json.Unmarshal(body, into); err != nil {
			return fmt.Errorf("decoding price response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}
