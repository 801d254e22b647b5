package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscription    = errors.New("pubsub orders subscription name is required")
)

// NewClient creates a Pub/Sub v2 client and ensures the orders subscription
// exists. PUBSUB_EMULATOR_HOST is honoured by the underlying client.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
	}

	if err := c.ensureSubscriptionExists(ctx, cfg.OrdersSubscription); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if strings.TrimSpace(cfg.AnalyticsSubscription) != "" {
		if err := c.ensureSubscriptionExists(ctx, cfg.AnalyticsSubscription); err != nil {
			_ = psClient.Close()
			return nil, err
		}
	}

	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}

	return c, nil
}

func (c *Client) ensureSubscriptionExists(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return errNoSubscription
	}
	fullName := subscriptionResourceName(c.projectID, name)
	if fullName == "" {
		return fmt.Errorf("subscription %q not configured", name)
	}

	_, err := c.client.SubscriptionAdminClient.GetSubscription(
		ctx,
		&pubsubpb.GetSubscriptionRequest{Subscription: fullName},
	)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", name)
		}
		return fmt.Errorf("checking subscription %q: %w", name, err)
	}
	return nil
}

// OrdersSubscription returns the subscriber feeding the dispatch worker.
func (c *Client) OrdersSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.subscriber(c.cfg.OrdersSubscription)
}

// AnalyticsSubscription returns the subscriber feeding the analytics
// worker, or nil when none is configured.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.subscriber(c.cfg.AnalyticsSubscription)
}

func (c *Client) subscriber(name string) *pubsub.Subscriber {
	if c.client == nil {
		return nil
	}
	fullName := subscriptionResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// Publisher returns a publisher handle for the given topic ID/resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := topicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Ping verifies connectivity by re-checking the orders subscription.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.ensureSubscriptionExists(ctx, c.cfg.OrdersSubscription)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func subscriptionResourceName(projectID, name string) string {
	return resourceName(projectID, name, "subscriptions")
}

func topicResourceName(projectID, name string) string {
	return resourceName(projectID, name, "topics")
}

func resourceName(projectID, name, kind string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
