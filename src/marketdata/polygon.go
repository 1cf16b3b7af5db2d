package marketdata

import (
	"context"
	"fmt"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	polygonmodels "github.com/polygon-io/client-go/rest/models"

	"github.com/premiummeter/premiummeter/src/models"
)

// PolygonClient serves underlying prices from the most recent daily
// aggregate. Free-tier keys only expose end-of-day data, so the price is a
// previous close rather than a live tick.
type PolygonClient struct {
	client *polygon.Client
}

func NewPolygonClient(apiKey string) *PolygonClient {
	return &PolygonClient{
		client: polygon.New(apiKey),
	}
}

func (c *PolygonClient) Name() models.DataSource {
	return models.SourcePolygon
}

func (c *PolygonClient) FetchPrice(ctx context.Context, symbol models.StockSymbol) (float64, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)

	params := polygonmodels.ListAggsParams{
		Ticker:     symbol.String(),
		Multiplier: 1,
		Timespan:   polygonmodels.Day,
		From:       polygonmodels.Millis(from),
		To:         polygonmodels.Millis(to),
	}.WithOrder(polygonmodels.Desc).WithAdjusted(true).WithLimit(1)

	iter := c.client.ListAggs(ctx, params)

	for iter.Next() {
		price := iter.Item().Close
		if price <= 0 {
			return 0, fmt.Errorf("PolygonClient.FetchPrice: non-positive close %.2f for %s", price, symbol)
		}

		return price, nil
	}

	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("PolygonClient.FetchPrice: failed to list aggregates for %s: %w", symbol, err)
	}

	return 0, fmt.Errorf("PolygonClient.FetchPrice: no aggregates returned for %s", symbol)
}
