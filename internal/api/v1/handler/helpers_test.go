package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"thumbgen/internal/config"
	"thumbgen/internal/metrics"
	"thumbgen/internal/middleware"
	"thumbgen/internal/model"
	"thumbgen/internal/repository"
	"thumbgen/internal/service"
)

const (
	testStripeSecret   = "whsec_stripe_test"
	testIdentitySecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
	testUserHeader     = "X-Test-User"
)

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubBilling struct{}

func (stubBilling) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	return &stripe.Subscription{ID: id, Status: stripe.SubscriptionStatusActive}, nil
}

func (stubBilling) NewCheckoutSession(context.Context, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{URL: "https://checkout.stripe.test/cs_1"}, nil
}

func (stubBilling) NewPortalSession(context.Context, *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://billing.stripe.test/p_1"}, nil
}

type stubProvider struct{ calls int }

func (p *stubProvider) Generate(context.Context, model.ImageRequest) (string, error) {
	p.calls++
	return "https://img.test/out.png", nil
}

type testServer struct {
	handler  http.Handler
	accounts repository.AccountRepository
	failures repository.MemoryWebhookFailures
	provider *stubProvider
}

// fakeAuth trusts the test header in place of a session token.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(testUserHeader); id != "" {
			r = r.WithContext(middleware.WithExternalID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	cfg := &config.Config{
		SiteURL:                      "https://thumbs.example.com",
		StripeWebhookSecret:          testStripeSecret,
		StripeStandardMonthlyPriceID: "price_std_m",
		StripeStandardYearlyPriceID:  "price_std_y",
		StripeProMonthlyPriceID:      "price_pro_m",
		StripeProYearlyPriceID:       "price_pro_y",
	}
	store := repository.NewMemoryStore()
	failures := repository.NewMemoryWebhookFailureRepo()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	clock := fixedClock{now: testNow}
	validate := validator.New(validator.WithRequiredStructEnabled())
	provider := &stubProvider{}

	usageSvc := service.NewUsageService(store.Accounts, clock, "https://thumbs.example.com/pricing", m, logger)
	identitySvc := service.NewIdentityService(store.Accounts, logger)
	subSvc := service.NewSubscriptionService(store.Accounts, clock, nil, "", logger)
	stripeSvc := service.NewStripeService(cfg, stubBilling{}, store.Accounts, subSvc, logger)
	thumbSvc := service.NewThumbnailService(store.Thumbnails, usageSvc, provider, service.PassthroughImageStore{}, "default/model", time.Second, m, logger)

	webhooks, err := NewWebhookHandler(stripeSvc, identitySvc, failures, testIdentitySecret, m, logger)
	require.NoError(t, err)

	r := chi.NewRouter()
	webhooks.RegisterRoutes(r)
	r.Route("/v1", func(r chi.Router) {
		r.Use(fakeAuth)
		NewUsageHandler(usageSvc, validate, logger).RegisterRoutes(r)
		NewSubscriptionHandler(stripeSvc, validate, logger).RegisterRoutes(r)
		NewThumbnailHandler(thumbSvc, validate, logger).RegisterRoutes(r)
	})

	return &testServer{handler: r, accounts: store.Accounts, failures: failures, provider: provider}
}

func (s *testServer) seed(t *testing.T, a *model.Account) {
	t.Helper()
	if a.ID == "" {
		a.ID = "acc-" + a.ExternalIdentityID
	}
	require.NoError(t, s.accounts.Create(context.Background(), a))
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(testUserHeader, user)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
