package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/smm-storefront/pkg/config"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

// Client wraps a BigQuery client bound to the order event dataset.
type Client struct {
	client    *bigquery.Client
	dataset   *bigquery.Dataset
	projectID string
	table     string
}

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery table name is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

// NewClient creates a BigQuery client and checks that the dataset and the
// order events table exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errDatasetRequired
	}
	table := strings.TrimSpace(cfg.OrderEventsTable)
	if table == "" {
		return nil, errTableNameRequired
	}

	bqClient, err := bigquery.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	client := &Client{
		client:    bqClient,
		dataset:   bqClient.Dataset(datasetID),
		projectID: projectID,
		table:     table,
	}
	if err := client.Ping(ctx); err != nil {
		_ = bqClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "dataset", datasetID), "bigquery client initialized")
	}
	return client, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// TableRef returns the fully qualified, backquoted table name for SQL.
func (c *Client) TableRef() string {
	if c == nil || c.dataset == nil {
		return ""
	}
	return fmt.Sprintf("`%s.%s.%s`", c.projectID, c.dataset.DatasetID, c.table)
}

// Table returns the order events table name.
func (c *Client) Table() string {
	if c == nil {
		return ""
	}
	return c.table
}

// Ping verifies the dataset and table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("checking dataset %q: %w", c.dataset.DatasetID, err)
	}
	if _, err := c.dataset.Table(c.table).Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("table %q does not exist", c.table)
		}
		return fmt.Errorf("checking table %q: %w", c.table, err)
	}
	return nil
}

// InsertRows streams rows into table.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errClientNotInitialized
	}
	if strings.TrimSpace(table) == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(strings.TrimSpace(table)).Inserter().Put(ctx, rows)
}

// Query runs sql with named parameters and returns the row iterator.
func (c *Client) Query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*bigquery.RowIterator, error) {
	if c == nil || c.client == nil {
		return nil, errClientNotInitialized
	}
	if strings.TrimSpace(sql) == "" {
		return nil, errors.New("sql query is required")
	}
	q := c.client.Query(sql)
	q.Parameters = params
	return q.Read(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
