package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roman-kulish/drone-flyover/internal/geo"
)

func nominatimServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("format") != "json" || q.Get("limit") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("q") != "Keem Bay Achill Island" {
			t.Errorf("q = %q", q.Get("q"))
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *NominatimClient {
	return NewNominatimClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(0))
}

func TestNominatimGeocode(t *testing.T) {
	srv := nominatimServer(t, http.StatusOK, `[{"lat":"53.9651","lon":"-10.1904","display_name":"Keem Bay"}]`)

	pt, err := newTestClient(srv).Geocode(context.Background(), " Keem Bay ", "Achill  Island")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}
	if pt != (geo.Point{Latitude: 53.9651, Longitude: -10.1904}) {
		t.Errorf("point = %v", pt)
	}
}

func TestNominatimErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"no results", http.StatusOK, `[]`},
		{"server error", http.StatusServiceUnavailable, `busy`},
		{"bad json", http.StatusOK, `{`},
		{"bad latitude", http.StatusOK, `[{"lat":"north","lon":"0"}]`},
		{"out of range", http.StatusOK, `[{"lat":"95","lon":"0"}]`},
	}
	for _, c := range cases {
		srv := nominatimServer(t, c.status, c.body)
		if _, err := newTestClient(srv).Geocode(context.Background(), "Keem Bay", "Achill Island"); err == nil {
			t.Errorf("%s: expected error", c.name)
		}
	}

	srv := nominatimServer(t, http.StatusOK, `[]`)
	if _, err := newTestClient(srv).Geocode(context.Background(), "Keem Bay", "Achill Island"); !errors.Is(err, ErrNoResults) {
		t.Errorf("error = %v, want ErrNoResults", err)
	}
	if _, err := newTestClient(srv).Geocode(context.Background(), " ", ""); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("error = %v, want ErrEmptyQuery", err)
	}
}

type stubGeocoder struct {
	pt  geo.Point
	err error
}

func (s stubGeocoder) Geocode(context.Context, string, string) (geo.Point, error) {
	return s.pt, s.err
}

func TestFallback(t *testing.T) {
	def := geo.Point{Latitude: 53.9889, Longitude: -10.0661}
	found := geo.Point{Latitude: 51.5, Longitude: -0.12}
	ctx := context.Background()

	res, err := WithFallback(stubGeocoder{pt: found}, def, nil).Resolve(ctx, "a", "b")
	if err != nil || res.Fallback || res.Point != found {
		t.Errorf("success: %+v, %v", res, err)
	}

	res, err = WithFallback(stubGeocoder{err: ErrNoResults}, def, nil).Resolve(ctx, "a", "b")
	if err != nil || !res.Fallback || res.Point != def || !errors.Is(res.Err, ErrNoResults) {
		t.Errorf("failure: %+v, %v", res, err)
	}

	pt, err := WithFallback(nil, def, nil).Geocode(ctx, "a", "b")
	if err != nil || pt != def {
		t.Errorf("nil geocoder: %v, %v", pt, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err = WithFallback(stubGeocoder{err: context.Canceled}, def, nil).Resolve(cancelled, "a", "b"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: error = %v", err)
	}
}
