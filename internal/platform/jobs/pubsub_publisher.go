package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/vitrinehub/api/internal/services"
)

// PubSubRedemptionPublisher publishes coupon redemption events to a Pub/Sub topic.
type PubSubRedemptionPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubRedemptionPublisher constructs a Pub/Sub backed coupon redemption publisher.
func NewPubSubRedemptionPublisher(topic *pubsub.Topic) (*PubSubRedemptionPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub redemption publisher: topic is required")
	}
	return &PubSubRedemptionPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishCouponRedemption enqueues a redemption message on the configured topic.
func (p *PubSubRedemptionPublisher) PublishCouponRedemption(ctx context.Context, message services.CouponRedemptionMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub redemption publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal coupon redemption: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "storeId", message.StoreID)
	setAttr(attrs, "promotionId", message.PromotionID)
	setAttr(attrs, "code", message.Code)
	setAttr(attrs, "checkoutSessionId", message.CheckoutSessionID)
	if key := strings.TrimSpace(message.IdempotencyKey); key != "" {
		attrs["idempotencyKey"] = key
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish coupon redemption: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

var _ services.CouponRedemptionPublisher = (*PubSubRedemptionPublisher)(nil)
