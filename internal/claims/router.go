package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"claimspace/go-backend/internal/identity"
	"claimspace/go-backend/internal/platform/metrics"
	"claimspace/go-backend/internal/waku"
)

// DefaultExchangeTopic is the fixed per-recipient topic suffix.
const DefaultExchangeTopic = "claims-exchange"

// ErrTransportNotConfigured means neither the push transport nor the mailbox
// client is available. Fatal per call, never retried internally.
var ErrTransportNotConfigured = errors.New("no claims transport is configured")

// PushTransport is the preferred topic-based delivery channel. The waku node
// satisfies it.
type PushTransport interface {
	Publish(ctx context.Context, env waku.Envelope) error
	Subscribe(topic string) (<-chan waku.Envelope, error)
	Unsubscribe(topic string)
}

// MailboxClient is the store-and-forward fallback.
type MailboxClient interface {
	Post(ctx context.Context, did string, payload []byte) error
}

// Router delivers claim messages between the current identity and its
// counterparties, preferring push and falling back to the mailbox.
type Router struct {
	push     PushTransport
	mailbox  MailboxClient
	identity *identity.Service
	topic    string
	log      *slog.Logger
}

func NewRouter(push PushTransport, mailbox MailboxClient, ident *identity.Service, topic string, log *slog.Logger) *Router {
	if topic == "" {
		topic = DefaultExchangeTopic
	}
	if log == nil {
		log = slog.Default()
	}
	return &Router{push: push, mailbox: mailbox, identity: ident, topic: topic, log: log}
}

// Request sends a claim request to every listed issuer and returns the fresh
// request id. Per-issuer dispatches run concurrently with no ordering
// guarantee between them; each dispatch is individually atomic and the
// returned error joins every failed one.
func (r *Router) Request(ctx context.Context, claimType string, fields map[string]any, issuerDIDs []string) (string, error) {
	if len(issuerDIDs) == 0 {
		return "", errors.New("at least one issuer did is required")
	}
	tok, err := r.identity.Token(ctx)
	if err != nil {
		return "", err
	}
	req := Request{
		RequestID:    uuid.NewString(),
		ClaimType:    claimType,
		Fields:       fields,
		Token:        tok.IdentityToken,
		RequesterDID: r.identity.DID(),
		IssuerDIDs:   issuerDIDs,
	}
	payload, err := encodeMessage(KindRequest, req)
	if err != nil {
		return "", err
	}

	errs := make([]error, len(issuerDIDs))
	var wg sync.WaitGroup
	for i, issuerDID := range issuerDIDs {
		wg.Add(1)
		go func(i int, issuerDID string) {
			defer wg.Done()
			errs[i] = r.dispatch(ctx, issuerDID, req.RequesterDID, payload)
		}(i, issuerDID)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return req.RequestID, err
	}
	r.log.Info("claim requested",
		"request_id", req.RequestID,
		"claim_type", claimType,
		"issuers", len(issuerDIDs))
	return req.RequestID, nil
}

// Issue answers a request with a signed attestation credential, delivered
// back to the requester. The mailbox fallback is keyed by the issuer's own
// DID for store-and-forward pickup.
func (r *Router) Issue(ctx context.Context, requestID, requesterDID, acceptedBy string) error {
	credential, err := r.identity.Attest(ctx, []byte(requestID))
	if err != nil {
		return err
	}
	iss := Issuance{
		RequestID:  requestID,
		IssuerDID:  r.identity.DID(),
		Credential: credential,
		AcceptedBy: acceptedBy,
	}
	payload, err := encodeMessage(KindIssuance, iss)
	if err != nil {
		return err
	}
	if err := r.dispatch(ctx, requesterDID, iss.IssuerDID, payload); err != nil {
		return err
	}
	r.log.Info("claim issued", "request_id", requestID)
	return nil
}

// Reject declines a request.
func (r *Router) Reject(ctx context.Context, requestID, requesterDID string) error {
	rej := Rejection{
		RequestID:  requestID,
		IssuerDID:  r.identity.DID(),
		IsRejected: true,
	}
	payload, err := encodeMessage(KindRejection, rej)
	if err != nil {
		return err
	}
	if err := r.dispatch(ctx, requesterDID, rej.IssuerDID, payload); err != nil {
		return err
	}
	r.log.Info("claim rejected", "request_id", requestID)
	return nil
}

// dispatch sends one payload: over the recipient's exchange topic when push
// is configured, otherwise into the sender's own mailbox entry.
func (r *Router) dispatch(ctx context.Context, recipientDID, senderDID string, payload []byte) error {
	if r.push != nil {
		env := waku.Envelope{
			ID:      uuid.NewString(),
			Topic:   ExchangeTopic(recipientDID, r.topic),
			Payload: payload,
		}
		if err := r.push.Publish(ctx, env); err != nil {
			return fmt.Errorf("publish to %s: %w", recipientDID, err)
		}
		metrics.ClaimDispatches.WithLabelValues("push").Inc()
		return nil
	}
	if r.mailbox != nil {
		if err := r.mailbox.Post(ctx, senderDID, payload); err != nil {
			return fmt.Errorf("mailbox post for %s: %w", recipientDID, err)
		}
		metrics.ClaimDispatches.WithLabelValues("mailbox").Inc()
		metrics.TransportFallbacks.Inc()
		return nil
	}
	return ErrTransportNotConfigured
}

// Subscribe opens the long-lived receive loop on the current identity's own
// exchange topic. The loop runs until ctx is cancelled or the transport
// stream closes; reconnection is the caller's responsibility.
func (r *Router) Subscribe(ctx context.Context, handler func(Message)) error {
	if r.push == nil {
		return ErrTransportNotConfigured
	}
	topic := ExchangeTopic(r.identity.DID(), r.topic)
	ch, err := r.push.Subscribe(topic)
	if err != nil {
		return err
	}

	go func() {
		defer r.push.Unsubscribe(topic)
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				msg, err := DecodeMessage(env.Payload)
				if err != nil {
					r.log.Warn("dropping undecodable exchange message", "reason", err.Error())
					continue
				}
				handler(msg)
			}
		}
	}()
	return nil
}

// ExchangeTopic derives the per-recipient topic name.
func ExchangeTopic(did, suffix string) string {
	return did + "." + suffix
}
