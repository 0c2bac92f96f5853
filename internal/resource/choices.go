// choices.go — кэш списков выбора (категории товаров) с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package resource

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/mdclient/internal/apiclient"
	"github.com/bigkaa/mdclient/internal/domain/model"
)

// CategoryChoicesPath — endpoint списка выбора категорий.
const CategoryChoicesPath = "/api/product-categories/choices/"

// Prometheus-метрики кэша.
var (
	choicesHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdc_choices_cache_hits_total",
		Help: "Общее количество попаданий в кэш списков выбора.",
	})
	choicesMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdc_choices_cache_misses_total",
		Help: "Общее количество промахов кэша списков выбора.",
	})
)

// ChoiceCache — кэш списков выбора. Ключ — путь endpoint'а.
type ChoiceCache struct {
	client Doer
	cache  *expirable.LRU[string, []model.CategoryChoice]
	logger *slog.Logger
}

// NewChoiceCache создаёт кэш с указанным максимальным размером и TTL.
func NewChoiceCache(client Doer, maxSize int, ttl time.Duration, logger *slog.Logger) *ChoiceCache {
	return &ChoiceCache{
		client: client,
		cache:  expirable.NewLRU[string, []model.CategoryChoice](maxSize, nil, ttl),
		logger: logger.With(slog.String("component", "choices")),
	}
}

// Categories возвращает список выбора категорий (из кэша или с сервера).
func (c *ChoiceCache) Categories(ctx context.Context) ([]model.CategoryChoice, error) {
	if choices, ok := c.cache.Get(CategoryChoicesPath); ok {
		choicesHitsTotal.Inc()
		return choices, nil
	}
	choicesMissesTotal.Inc()

	var choices []model.CategoryChoice
	err := c.client.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: CategoryChoicesPath}, &choices)
	if err != nil {
		return nil, err
	}

	c.cache.Add(CategoryChoicesPath, choices)
	c.logger.Debug("Список выбора загружен", slog.Int("count", len(choices)))
	return choices, nil
}

// CategoryName возвращает название категории по id.
func (c *ChoiceCache) CategoryName(ctx context.Context, id int64) (string, bool, error) {
	choices, err := c.Categories(ctx)
	if err != nil {
		return "", false, err
	}
	for _, ch := range choices {
		if ch.ID == id {
			return ch.ProductCategoryName, true, nil
		}
	}
	return "", false, nil
}

// Invalidate сбрасывает кэш (после изменения категорий).
func (c *ChoiceCache) Invalidate() {
	c.cache.Purge()
}
