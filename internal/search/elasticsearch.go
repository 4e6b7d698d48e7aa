package search

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"

	"example.com/snackhouse/delivery/config"
	"example.com/snackhouse/delivery/internal/models"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient provides integration with Elasticsearch. Completed
// deliveries are indexed so the history view can search them by
// description and order contents.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

func (c *ElasticClient) indexName() string {
	return c.config.Prefix + "-" + c.config.Index
}

// IndexDelivery indexes a completed delivery with its order lines
func (c *ElasticClient) IndexDelivery(ctx context.Context, delivery *models.Delivery, lines []models.OrderLine) error {
	log.Info().Uint("delivery_id", delivery.ID).Msg("indexing delivery")

	items := make([]map[string]interface{}, 0, len(lines))
	for _, line := range lines {
		items = append(items, map[string]interface{}{
			"name":       line.StockItem.Name,
			"quantity":   line.Quantity,
			"unit_price": line.StockItem.UnitPrice,
		})
	}

	doc := map[string]interface{}{
		"id":                delivery.ID,
		"date":              delivery.Date,
		"time":              delivery.TimeOfDay,
		"description":       delivery.Description,
		"lead_time_minutes": delivery.LeadTimeMinutes,
		"status":            delivery.Status,
		"created_at":        delivery.CreatedAt,
		"items":             items,
	}

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal delivery document")
	}

	req := esapi.IndexRequest{
		Index:      c.indexName(),
		DocumentID: itoa(delivery.ID),
		Body:       bytes.NewReader(docJSON),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Info().Uint("delivery_id", delivery.ID).Msg("delivery indexed successfully")
	return nil
}

// SearchDeliveries searches indexed deliveries matching the given text
func (c *ElasticClient) SearchDeliveries(ctx context.Context, text string) ([]map[string]interface{}, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"description", "items.name"},
			},
		},
	}

	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.indexName()},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return nil, errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return nil, errors.Errorf("Elasticsearch search error: %v", e)
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected search result format")
	}

	hitsArray, ok := hits["hits"].([]interface{})
	if !ok {
		return nil, errors.New("unexpected hits format")
	}

	var docs []map[string]interface{}
	for _, hit := range hitsArray {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}

		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		docs = append(docs, source)
	}

	return docs, nil
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
