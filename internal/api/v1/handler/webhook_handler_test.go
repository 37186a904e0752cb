package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	svix "github.com/svix/svix-webhooks/go"

	"thumbgen/internal/model"
	"thumbgen/internal/repository"
	"thumbgen/internal/tier"
)

func (s *testServer) postStripe(t *testing.T, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func signStripe(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testStripeSecret}).Header
}

func (s *testServer) postIdentity(t *testing.T, msgID string, payload []byte, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	now := time.Now()
	sig := "v1,bm90LWEtc2lnbmF0dXJl"
	if signed {
		wh, err := svix.NewWebhook(testIdentitySecret)
		require.NoError(t, err)
		sig, err = wh.Sign(msgID, now, payload)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(payload))
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", sig)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	s := newTestServer(t)
	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1"}}}`)

	rec := s.postStripe(t, payload, "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.failures.All())
}

func TestStripeWebhook_SubscriptionDeleted(t *testing.T) {
	s := newTestServer(t)
	s.seed(t, &model.Account{ExternalIdentityID: "user_1", BillingCustomerID: model.StringPtr("cus_1"), Tier: tier.Pro})
	payload := []byte(`{"id":"evt_1","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_1","status":"canceled"}}}`)

	rec := s.postStripe(t, payload, signStripe(payload))
	require.Equal(t, http.StatusOK, rec.Code)

	a, err := s.accounts.Get(context.Background(), repository.AccountByExternalID("user_1"))
	require.NoError(t, err)
	assert.Equal(t, tier.Free, a.Tier)
	assert.Equal(t, model.StatusCanceled, a.SubscriptionStatus)
}

func TestStripeWebhook_UnknownCustomerRecordsFailure(t *testing.T) {
	s := newTestServer(t)
	payload := []byte(`{"id":"evt_2","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","customer":"cus_missing"}}}`)

	rec := s.postStripe(t, payload, signStripe(payload))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	failures := s.failures.All()
	require.Len(t, failures, 1)
	assert.Equal(t, "stripe", failures[0].Source)
	assert.Equal(t, "evt_2", failures[0].EventID)
	assert.Equal(t, "customer.subscription.deleted", failures[0].EventType)
	assert.JSONEq(t, string(payload), failures[0].Payload)
	assert.NotContains(t, rec.Body.String(), "cus_missing")
}

func TestStripeWebhook_UnhandledTypeAcknowledged(t *testing.T) {
	s := newTestServer(t)
	payload := []byte(`{"id":"evt_3","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	rec := s.postStripe(t, payload, signStripe(payload))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityWebhook_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	created := []byte(`{"type":"user.created","data":{"id":"user_9","first_name":"Ada","image_url":"https://img.test/ada.png","email_addresses":[{"email_address":"ada@example.com"},{"email_address":"other@example.com"}]}}`)

	rec := s.postIdentity(t, "msg_1", created, true)
	require.Equal(t, http.StatusOK, rec.Code)

	a, err := s.accounts.Get(context.Background(), repository.AccountByExternalID("user_9"))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", *a.Email)
	assert.Equal(t, "Ada", *a.Name)
	assert.Equal(t, tier.Free, a.EffectiveTier())

	// Redelivery of user.created is acknowledged.
	rec = s.postIdentity(t, "msg_1", created, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	updated := []byte(`{"type":"user.updated","data":{"id":"user_9","first_name":"Ada L","image_url":"https://img.test/ada2.png"}}`)
	rec = s.postIdentity(t, "msg_2", updated, true)
	require.Equal(t, http.StatusOK, rec.Code)
	a, err = s.accounts.Get(context.Background(), repository.AccountByExternalID("user_9"))
	require.NoError(t, err)
	assert.Equal(t, "Ada L", *a.Name)
	assert.Equal(t, "ada@example.com", *a.Email)

	rec = s.postIdentity(t, "msg_3", []byte(`{"type":"user.deleted","data":{"id":"user_9","deleted":true}}`), true)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err = s.accounts.Get(context.Background(), repository.AccountByExternalID("user_9"))
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
	assert.Empty(t, s.failures.All())
}

func TestIdentityWebhook_BadSignature(t *testing.T) {
	s := newTestServer(t)
	rec := s.postIdentity(t, "msg_1", []byte(`{"type":"user.created","data":{"id":"user_9"}}`), false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := s.accounts.Get(context.Background(), repository.AccountByExternalID("user_9"))
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

func TestIdentityWebhook_UpdateUnknownRecordsFailure(t *testing.T) {
	s := newTestServer(t)
	rec := s.postIdentity(t, "msg_7", []byte(`{"type":"user.updated","data":{"id":"ghost","first_name":"G"}}`), true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	failures := s.failures.All()
	require.Len(t, failures, 1)
	assert.Equal(t, "identity", failures[0].Source)
	assert.Equal(t, "msg_7", failures[0].EventID)
	assert.Equal(t, "user.updated", failures[0].EventType)
}

func TestIdentityWebhook_IgnoresOtherEvents(t *testing.T) {
	s := newTestServer(t)
	rec := s.postIdentity(t, "msg_8", []byte(`{"type":"session.created","data":{"id":"sess_1"}}`), true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentityWebhook_MissingUserIDRejected(t *testing.T) {
	s := newTestServer(t)
	for _, payload := range []string{
		`{"type":"user.created","data":{"first_name":"NoID"}}`,
		`{"type":"user.deleted"}`,
	} {
		rec := s.postIdentity(t, "msg_9", []byte(payload), true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
	assert.Empty(t, s.failures.All())
}
