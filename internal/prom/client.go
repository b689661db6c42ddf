package prom

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
	"github.com/MrSnakeDoc/clusterview/internal/logger"
)

// ApplicationLabel is the pool metadata label samples are grouped by.
const ApplicationLabel = "application"

const applicationMatcher = `application=~"(.*Block.*)|(.*Filesystem.*)|(.*Object.*)|(..*)"`

// Per-application capacity queries, keyed by capacity type.
var CapacityQueries = map[domain.CapacityType]string{
	domain.CapacityRaw: `sum by (application) (ceph_pool_bytes_used * on(pool_id) group_left(instance, name, application) ceph_pool_metadata{` +
		applicationMatcher + `})`,
	domain.CapacityUsed: `sum by (application) (ceph_pool_stored * on(pool_id) group_left(instance, name, application) ceph_pool_metadata{` +
		applicationMatcher + `})`,
}

// Cluster-wide totals pushed into the capacity card.
const (
	TotalBytesQuery = `sum(ceph_osd_stat_bytes)`
	UsedBytesQuery  = `sum(ceph_osd_stat_bytes_used)`
)

// ErrUnexpectedResult is returned when a query does not yield an instant vector.
var ErrUnexpectedResult = errors.New("unexpected query result type")

// Client runs instant queries against Prometheus.
type Client struct {
	api     v1.API
	timeout time.Duration
	logger  logger.Logger
	now     func() time.Time
}

// New creates a Prometheus query client for the given server address.
func New(address string, timeout time.Duration, log logger.Logger) (*Client, error) {
	c, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus client: %w", err)
	}
	return NewWithAPI(v1.NewAPI(c), timeout, log), nil
}

// NewWithAPI wraps an existing v1.API.
func NewWithAPI(a v1.API, timeout time.Duration, log logger.Logger) *Client {
	return &Client{api: a, timeout: timeout, logger: log, now: time.Now}
}

// QueryByApplication runs an instant query and returns one sample per
// application label. Non-numeric values come back as NaN.
func (c *Client) QueryByApplication(ctx context.Context, query string) ([]domain.MetricSample, error) {
	vec, err := c.vector(ctx, query)
	if err != nil {
		return nil, err
	}
	samples := make([]domain.MetricSample, 0, len(vec))
	for _, s := range vec {
		samples = append(samples, domain.MetricSample{
			Application: string(s.Metric[ApplicationLabel]),
			Value:       float64(s.Value),
		})
	}
	return samples, nil
}

// QueryScalar runs an instant query expected to return at most one sample.
// An empty result yields NaN.
func (c *Client) QueryScalar(ctx context.Context, query string) (float64, error) {
	vec, err := c.vector(ctx, query)
	if err != nil {
		return math.NaN(), err
	}
	if len(vec) == 0 {
		return math.NaN(), nil
	}
	return float64(vec[0].Value), nil
}

func (c *Client) vector(ctx context.Context, query string) (model.Vector, error) {
	var opts []v1.Option
	if c.timeout > 0 {
		opts = append(opts, v1.WithTimeout(c.timeout))
	}
	result, warnings, err := c.api.Query(ctx, query, c.now(), opts...)
	if err != nil {
		return nil, fmt.Errorf("prometheus query failed: %w", err)
	}
	if len(warnings) > 0 {
		c.logger.Warn("prometheus query returned warnings",
			logger.String("query", query),
			logger.Strings("warnings", warnings))
	}
	vec, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedResult, result.Type())
	}
	return vec, nil
}
