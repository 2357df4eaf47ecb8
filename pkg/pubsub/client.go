package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/logger"
)

// Client owns the Pub/Sub connection shared by the outbox publisher and the
// notification worker. Publisher handles are cached per topic and flushed on Close.
type Client struct {
	client    *gcppubsub.Client
	projectID string
	cfg       config.PubSubConfig
	logg      *logger.Logger

	mu         sync.Mutex
	publishers map[string]*gcppubsub.Publisher
}

type resourceKind string

const (
	kindTopic        resourceKind = "topics"
	kindSubscription resourceKind = "subscriptions"
)

func (k resourceKind) singular() string {
	return strings.TrimSuffix(string(k), "s")
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errClientClosed      = errors.New("pubsub client not initialized")
)

// NewClient dials Pub/Sub and makes sure the domain topic and subscription
// exist. With AutoCreate set (emulator and dev boxes) missing resources are created.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := gcppubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     psClient,
		projectID:  gcp.ProjectID,
		cfg:        cfg,
		logg:       logg,
		publishers: map[string]*gcppubsub.Publisher{},
	}

	if err := c.provision(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        cfg.DomainTopic,
			"subscription": cfg.DomainSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) provision(ctx context.Context) error {
	if err := c.ensure(ctx, kindTopic, c.cfg.DomainTopic, c.getTopic, c.createTopic); err != nil {
		return err
	}
	if strings.TrimSpace(c.cfg.DomainSubscription) == "" {
		return nil
	}
	return c.ensure(ctx, kindSubscription, c.cfg.DomainSubscription, c.getSubscription, c.createSubscription)
}

type resourceFunc func(ctx context.Context, fullName string) error

// ensure looks the resource up and, when it is missing and AutoCreate is on,
// creates it. AlreadyExists from a racing replica counts as success.
func (c *Client) ensure(ctx context.Context, kind resourceKind, name string, get, create resourceFunc) error {
	fullName := resourceName(c.projectID, kind, name)
	if fullName == "" {
		return fmt.Errorf("%s %q not configured", kind.singular(), name)
	}

	err := get(ctx, fullName)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("checking %s %q: %w", kind.singular(), name, err)
	}
	if !c.cfg.AutoCreate {
		return fmt.Errorf("%s %q does not exist", kind.singular(), name)
	}

	if err := create(ctx, fullName); err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating %s %q: %w", kind.singular(), name, err)
	}
	if c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, kind.singular(), fullName), "pubsub resource created")
	}
	return nil
}

func (c *Client) getTopic(ctx context.Context, fullName string) error {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
	return err
}

func (c *Client) createTopic(ctx context.Context, fullName string) error {
	_, err := c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: fullName})
	return err
}

func (c *Client) getSubscription(ctx context.Context, fullName string) error {
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: fullName})
	return err
}

func (c *Client) createSubscription(ctx context.Context, fullName string) error {
	_, err := c.client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:               fullName,
		Topic:              resourceName(c.projectID, kindTopic, c.cfg.DomainTopic),
		AckDeadlineSeconds: int32(c.cfg.AckDeadline.Seconds()),
	})
	return err
}

// DomainSubscriber returns the receive handle for the notification worker,
// bounded by the configured outstanding message limit.
func (c *Client) DomainSubscriber() *gcppubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, kindSubscription, c.cfg.DomainSubscription)
	if fullName == "" {
		return nil
	}
	sub := c.client.Subscriber(fullName)
	if c.cfg.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.cfg.MaxOutstanding
	}
	return sub
}

// Publisher returns the cached publisher for a topic ID or resource name.
func (c *Client) Publisher(name string) *gcppubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := resourceName(c.projectID, kindTopic, name)
	if fullName == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[fullName]; ok {
		return pub
	}
	pub := c.client.Publisher(fullName)
	c.publishers[fullName] = pub
	return pub
}

// Ping checks that the domain topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errClientClosed
	}
	fullName := resourceName(c.projectID, kindTopic, c.cfg.DomainTopic)
	if err := c.getTopic(ctx, fullName); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}
	return nil
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a bare ID into projects/<project>/<kind>/<id>. Names that
// already carry a project path pass through untouched.
func resourceName(projectID string, kind resourceKind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
