package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/threadline-backend/pkg/config"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub domain topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// The outbox publisher waits on every result, so batching only adds latency.
const publishDelay = 10 * time.Millisecond

// Client owns the Pub/Sub connection for the domain events topic.
type Client struct {
	client  *pubsub.Client
	topic   string
	ordered bool

	once      sync.Once
	publisher *pubsub.Publisher
}

// NewClient connects and checks that the domain topic exists, creating it
// when cfg.CreateTopic is set.
func NewClient(ctx context.Context, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topic := topicResourceName(project, cfg.DomainTopic)
	if topic == "" {
		return nil, errNoTopic
	}

	psClient, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{client: psClient, topic: topic, ordered: cfg.Ordered}

	created, err := c.ensureTopic(ctx, cfg.CreateTopic)
	if err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":         topic,
			"topic_created": created,
			"ordered":       cfg.Ordered,
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) ensureTopic(ctx context.Context, create bool) (bool, error) {
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case err == nil:
		return false, nil
	case status.Code(err) != codes.NotFound:
		return false, fmt.Errorf("checking topic %s: %w", c.topic, err)
	case !create:
		return false, fmt.Errorf("topic %s does not exist", c.topic)
	}

	_, err = c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: c.topic})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return false, fmt.Errorf("creating topic %s: %w", c.topic, err)
	}
	return true, nil
}

// Topic is the full resource name of the domain topic.
func (c *Client) Topic() string {
	if c == nil {
		return ""
	}
	return c.topic
}

// DomainPublisher returns the shared publisher for the domain topic. With
// ordering on, a failed publish pauses its ordering key until ResumePublish.
func (c *Client) DomainPublisher() *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	c.once.Do(func() {
		p := c.client.Publisher(c.topic)
		p.EnableMessageOrdering = c.ordered
		p.PublishSettings.DelayThreshold = publishDelay
		c.publisher = p
	})
	return c.publisher
}

// Ordered reports whether messages carry an ordering key.
func (c *Client) Ordered() bool {
	return c != nil && c.ordered
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	_, err := c.ensureTopic(ctx, false)
	return err
}

// Close stops the publisher, flushing anything buffered, then closes the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	return c.client.Close()
}

// topicResourceName expands a short topic id to projects/<p>/topics/<id>.
// Full resource names pass through unchanged.
func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
