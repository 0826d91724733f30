// internal/store/search.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"cooin-core/internal/common/database"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/models"
)

// TicketSearch narrows the candidate pool through the ticket search index
// before the scorer ever sees it. The index mirrors Postgres and may lag a
// little, so the filter and scorer still re-check everything it returns.
type TicketSearch struct {
	es     *database.ElasticsearchClient
	index  string
	logger logger.Logger
}

func NewTicketSearch(es *database.ElasticsearchClient, index string, log logger.Logger) *TicketSearch {
	return &TicketSearch{es: es, index: index, logger: log}
}

// ActiveTicketIDs returns the ids of active tickets of the given role, owner
// excluded, capped at size.
func (s *TicketSearch) ActiveTicketIDs(ctx context.Context, role models.TicketRole, excludeOwner string, size int) ([]string, error) {
	queryBody := map[string]interface{}{
		"_source": false,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{"role": string(role)},
					},
					map[string]interface{}{
						"term": map[string]interface{}{"status": string(models.TicketActive)},
					},
				},
				"must_not": []interface{}{
					map[string]interface{}{
						"term": map[string]interface{}{"owner_id": excludeOwner},
					},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"id": "asc"},
		},
	}

	body, _ := json.Marshal(queryBody)
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, s.es.Client)
	if err != nil {
		return nil, fmt.Errorf("ticket search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("ticket search returned %s", res.Status())
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	ids := make([]string, 0, len(envelope.Hits.Hits))
	for _, hit := range envelope.Hits.Hits {
		ids = append(ids, hit.ID)
	}

	s.logger.Debug("candidate prefilter", map[string]interface{}{
		"role":  string(role),
		"count": len(ids),
	})
	return ids, nil
}
