package price

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"coineda/cache"
)

func newOracle(baseURL string) *Oracle {
	o := NewOracle(cache.NewMemory(), zerolog.Nop())
	o.BaseURL = baseURL
	return o
}

func TestCurrentPricesCaching(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("vs_currencies"); got != "eur" {
			t.Errorf("expected eur quotes, got %q", got)
		}
		fmt.Fprint(w, `{"bitcoin":{"eur":40000},"ethereum":{"eur":2500}}`)
	}))
	defer srv.Close()

	o := newOracle(srv.URL)
	ctx := context.Background()

	got, err := o.CurrentPrices(ctx, []string{"bitcoin", "ethereum"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"bitcoin": 40000, "ethereum": 2500}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if hits != 1 {
		t.Fatalf("expected one request, got %d", hits)
	}

	// both ids are now cached, the second call stays local
	if _, err := o.CurrentPrices(ctx, []string{"bitcoin", "ethereum"}); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("cached lookup still went to the provider, %d hits", hits)
	}

	// the base currency never needs the provider at all
	p, err := o.CurrentPrice(ctx, "euro")
	if err != nil || p != 1 {
		t.Errorf("expected the base currency at 1, got %v (%v)", p, err)
	}
}

func TestCurrentPriceMissingFromResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := newOracle(srv.URL).CurrentPrice(context.Background(), "bitcoin")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestPriceAt(t *testing.T) {
	at := time.Date(2021, time.March, 1, 14, 30, 0, 0, time.UTC)

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/coins/bitcoin/market_chart/range" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if got := q.Get("from"); got != fmt.Sprint(at.Unix()) {
			t.Errorf("expected from %d, got %q", at.Unix(), got)
		}
		if got := q.Get("to"); got != fmt.Sprint(at.Add(5*time.Hour).Unix()) {
			t.Errorf("expected a five hour window, got to=%q", got)
		}
		// the first sample in the window wins
		fmt.Fprint(w, `{"prices":[[1614609000000,41000],[1614612600000,42000]]}`)
	}))
	defer srv.Close()

	o := newOracle(srv.URL)
	ctx := context.Background()

	p, err := o.PriceAt(ctx, "bitcoin", at)
	if err != nil {
		t.Fatal(err)
	}
	if p != 41000 {
		t.Errorf("expected the first sample 41000, got %v", p)
	}

	// historical data is immutable, the second lookup is served locally
	if _, err := o.PriceAt(ctx, "bitcoin", at); err != nil {
		t.Fatal(err)
	}
	if hits != 1 {
		t.Errorf("expected one request, got %d", hits)
	}

	if p, err := o.PriceAt(ctx, "euro", at); err != nil || p != 1 {
		t.Errorf("expected the base currency at 1, got %v (%v)", p, err)
	}
}

func TestPriceAtEmptyWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prices":[]}`)
	}))
	defer srv.Close()

	_, err := newOracle(srv.URL).PriceAt(context.Background(), "bitcoin", time.Now())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestRateLimitFailsFast(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newOracle(srv.URL).CurrentPrice(context.Background(), "bitcoin")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if hits != 1 {
		t.Errorf("a rate limited call must not retry, got %d hits", hits)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"bitcoin":{"eur":40000}}`)
	}))
	defer srv.Close()

	p, err := newOracle(srv.URL).CurrentPrice(context.Background(), "bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	if p != 40000 || hits != 3 {
		t.Errorf("expected success on the third attempt, got %v after %d hits", p, hits)
	}
}
