package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"thumbgen/internal/config"
	"thumbgen/internal/model"
	"thumbgen/internal/repository"
	"thumbgen/internal/tier"
)

// BillingClient is the subset of the Stripe API used by StripeService.
type BillingClient interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

type stripeAPI struct{}

// NewStripeClient sets the global Stripe key and returns a BillingClient backed by the Stripe API.
func NewStripeClient(secretKey string) BillingClient {
	stripe.Key = secretKey
	return stripeAPI{}
}

func (stripeAPI) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscriptionpkg.Get(id, params)
}

func (stripeAPI) NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return checkoutsession.New(params)
}

func (stripeAPI) NewPortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	params.Context = ctx
	return billingsession.New(params)
}

// PriceIDs holds the Stripe price for every paid tier and cycle.
type PriceIDs struct {
	StandardMonthly string
	StandardYearly  string
	ProMonthly      string
	ProYearly       string
}

func PriceIDsFromConfig(cfg *config.Config) PriceIDs {
	return PriceIDs{
		StandardMonthly: cfg.StripeStandardMonthlyPriceID,
		StandardYearly:  cfg.StripeStandardYearlyPriceID,
		ProMonthly:      cfg.StripeProMonthlyPriceID,
		ProYearly:       cfg.StripeProYearlyPriceID,
	}
}

func (p PriceIDs) priceFor(t tier.Tier, cycle model.BillingCycle) string {
	yearly := cycle == model.CycleYearly
	switch {
	case t == tier.Standard && yearly:
		return p.StandardYearly
	case t == tier.Standard:
		return p.StandardMonthly
	case t == tier.Pro && yearly:
		return p.ProYearly
	case t == tier.Pro:
		return p.ProMonthly
	default:
		return ""
	}
}

// tierFor maps a price to its tier. Unknown prices count as standard.
func (p PriceIDs) tierFor(priceID string) tier.Tier {
	if priceID != "" && (priceID == p.ProMonthly || priceID == p.ProYearly) {
		return tier.Pro
	}
	return tier.Standard
}

func (p PriceIDs) cycleFor(priceID string) model.BillingCycle {
	if priceID != "" && (priceID == p.StandardYearly || priceID == p.ProYearly) {
		return model.CycleYearly
	}
	return model.CycleMonthly
}

// StripeService manages Stripe checkout, portal and webhook translation.
type StripeService struct {
	client        BillingClient
	accounts      repository.AccountRepository
	subSvc        SubscriptionService
	prices        PriceIDs
	siteURL       string
	webhookSecret string
	logger        zerolog.Logger
}

// NewStripeService returns a service with a scoped logger.
func NewStripeService(cfg *config.Config, client BillingClient, accounts repository.AccountRepository, subSvc SubscriptionService, logger zerolog.Logger) *StripeService {
	return &StripeService{
		client:        client,
		accounts:      accounts,
		subSvc:        subSvc,
		prices:        PriceIDsFromConfig(cfg),
		siteURL:       strings.TrimRight(cfg.SiteURL, "/"),
		webhookSecret: cfg.StripeWebhookSecret,
		logger:        logger.With().Str("service", "StripeService").Logger(),
	}
}

// CreateCheckoutSession starts a subscription checkout for the identity and returns its URL.
// The billing customer is prefilled when known, else the account email.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, externalID string, t tier.Tier, cycle model.BillingCycle) (string, error) {
	if !t.Paid() || !cycle.Valid() {
		return "", ErrInvalidPlan
	}
	priceID := s.prices.priceFor(t, cycle)
	if priceID == "" {
		s.logger.Error().Str("tier", string(t)).Str("billing_cycle", string(cycle)).Msg("No Stripe price configured")
		return "", ErrBillingNotEnabled
	}

	metadata := map[string]string{
		"user_id":       externalID,
		"tier":          string(t),
		"billing_cycle": string(cycle),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		SuccessURL:         stripe.String(s.siteURL + "/settings?success=true"),
		CancelURL:          stripe.String(s.siteURL + "/pricing?canceled=true"),
		Metadata:           metadata,
		SubscriptionData:   &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata},
	}

	a, err := s.accounts.Get(ctx, repository.AccountByExternalID(externalID))
	switch {
	case err == nil:
		if a.BillingCustomerID != nil && *a.BillingCustomerID != "" {
			params.Customer = a.BillingCustomerID
		} else if a.Email != nil && *a.Email != "" {
			params.CustomerEmail = a.Email
		}
	case errors.Is(err, ErrAccountNotFound):
		s.logger.Warn().Str("external_id", externalID).Msg("Creating checkout session without account")
	default:
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("Failed to fetch account for checkout session")
		return "", fmt.Errorf("fetch account: %w", err)
	}

	sess, err := s.client.NewCheckoutSession(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("external_id", externalID).Str("price_id", priceID).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession returns a Stripe customer portal URL for the identity.
func (s *StripeService) CreatePortalSession(ctx context.Context, externalID string) (string, error) {
	a, err := s.accounts.Get(ctx, repository.AccountByExternalID(externalID))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", err
		}
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("Failed to fetch account for portal session")
		return "", fmt.Errorf("fetch account: %w", err)
	}
	if a.BillingCustomerID == nil || *a.BillingCustomerID == "" {
		return "", ErrNoBillingAccount
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  a.BillingCustomerID,
		ReturnURL: stripe.String(s.siteURL + "/settings"),
	}
	sess, err := s.client.NewPortalSession(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
func (s *StripeService) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, ErrBillingNotEnabled
	}
	return webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// HandleEvent translates a verified Stripe event into a subscription transition.
// It reports false for event types that carry no transition.
func (s *StripeService) HandleEvent(ctx context.Context, event stripe.Event) (bool, error) {
	if event.Data == nil {
		return false, fmt.Errorf("event %s has no data", event.ID)
	}
	s.logger.Info().Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	switch event.Type {
	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return false, fmt.Errorf("decode checkout session: %w", err)
		}
		if cs.Mode != stripe.CheckoutSessionModeSubscription || cs.Subscription == nil || cs.Subscription.ID == "" {
			s.logger.Info().Str("checkout_session_id", cs.ID).Msg("Checkout session has no subscription, skipping")
			return false, nil
		}
		sub, err := s.client.GetSubscription(ctx, cs.Subscription.ID)
		if err != nil {
			return false, fmt.Errorf("fetch subscription %s: %w", cs.Subscription.ID, err)
		}
		change := s.changeFromSubscription(sub)
		if cs.Customer != nil && cs.Customer.ID != "" {
			change.BillingCustomerID = cs.Customer.ID
		}
		change.ExternalIdentityID = cs.Metadata["user_id"]
		_, err = s.subSvc.ApplyCheckoutCompleted(ctx, change)
		return true, err

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return false, fmt.Errorf("decode subscription: %w", err)
		}
		_, err := s.subSvc.ApplySubscriptionUpdated(ctx, s.changeFromSubscription(&sub))
		return true, err

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return false, fmt.Errorf("decode subscription: %w", err)
		}
		_, err := s.subSvc.ApplySubscriptionCanceled(ctx, customerID(sub.Customer))
		return true, err

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return false, fmt.Errorf("decode invoice: %w", err)
		}
		if invoiceSubscriptionID(&invoice) == "" {
			s.logger.Info().Str("invoice_id", invoice.ID).Msg("Invoice has no subscription, skipping subscription update")
			return false, nil
		}
		_, err := s.subSvc.ApplyPaymentFailed(ctx, customerID(invoice.Customer))
		return true, err

	default:
		s.logger.Info().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
		return false, nil
	}
}

func (s *StripeService) changeFromSubscription(sub *stripe.Subscription) model.SubscriptionChange {
	change := model.SubscriptionChange{
		BillingCustomerID:     customerID(sub.Customer),
		BillingSubscriptionID: sub.ID,
		Tier:                  tier.Standard,
		Status:                mapSubscriptionStatus(sub.Status),
		BillingCycle:          model.CycleMonthly,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			change.Tier = s.prices.tierFor(item.Price.ID)
			change.BillingCycle = s.prices.cycleFor(item.Price.ID)
		}
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			change.CurrentPeriodEnd = &end
		}
	}
	return change
}

// mapSubscriptionStatus folds Stripe's statuses into the four the account tracks.
func mapSubscriptionStatus(st stripe.SubscriptionStatus) model.SubscriptionStatus {
	switch st {
	case stripe.SubscriptionStatusTrialing:
		return model.StatusTrialing
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return model.StatusCanceled
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusPaused:
		return model.StatusPastDue
	default:
		return model.StatusActive
	}
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func invoiceSubscriptionID(invoice *stripe.Invoice) string {
	if invoice.Lines == nil {
		return ""
	}
	for _, line := range invoice.Lines.Data {
		if line.Subscription != nil && line.Subscription.ID != "" {
			return line.Subscription.ID
		}
	}
	return ""
}
