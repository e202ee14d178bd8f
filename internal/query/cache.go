package query

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/portal/internal/metrics"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const cleanupInterval = 10 * time.Minute

// Cache guarda resultados por Key, deduplica fetches concurrentes y descarta
// resultados de fetches que quedaron viejos por una invalidación en vuelo.
type Cache struct {
	items *gocache.Cache
	sf    singleflight.Group
	log   *zap.Logger

	mu    sync.Mutex
	epoch uint64            // se incrementa con Clear
	gens  map[Family]uint64 // se incrementa con Invalidate
}

type entry struct {
	value     any
	fetchedAt time.Time
}

type generation struct {
	epoch, family uint64
}

// New crea una cache vacía. l puede ser nil.
func New(l *zap.Logger) *Cache {
	return &Cache{
		items: gocache.New(gocache.NoExpiration, cleanupInterval),
		log:   logger.Or(l, "query"),
		gens:  map[Family]uint64{},
	}
}

func (c *Cache) generation(f Family) generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation{epoch: c.epoch, family: c.gens[f]}
}

func (c *Cache) get(k Key) (entry, bool) {
	v, ok := c.items.Get(k.String())
	if !ok {
		return entry{}, false
	}
	e, ok := v.(entry)
	return e, ok
}

// store guarda el valor sólo si la familia no fue invalidada desde gen.
func (c *Cache) store(k Key, gen generation, v any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != gen.epoch || c.gens[k.Family] != gen.family {
		return false
	}
	exp := gocache.NoExpiration
	if ttl > 0 {
		exp = ttl
	}
	c.items.Set(k.String(), entry{value: v, fetchedAt: time.Now()}, exp)
	return true
}

// Invalidate descarta todas las claves de las familias indicadas. Un fetch en
// vuelo de esas familias no se cachea al terminar.
func (c *Cache) Invalidate(families ...Family) {
	if len(families) == 0 {
		return
	}
	c.mu.Lock()
	for _, f := range families {
		c.gens[f]++
	}
	c.mu.Unlock()

	for key := range c.items.Items() {
		k := parseKey(key)
		for _, f := range families {
			if k.belongsTo(f) {
				c.items.Delete(key)
				break
			}
		}
	}
	for _, f := range families {
		metrics.QueryInvalidations.WithLabelValues(string(f)).Inc()
		c.log.Debug("invalidated", logger.Family(string(f)))
	}
}

// Clear borra todo. Se llama en logout: los datos son de la identidad anterior.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
	c.items.Flush()
	c.log.Debug("cleared")
}

// Len devuelve la cantidad de claves cacheadas (incluye vencidas aún no barridas).
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Has dice si k tiene un valor fresco.
func (c *Cache) Has(k Key) bool {
	_, ok := c.get(k)
	return ok
}

func (c *Cache) flightKey(k Key, gen generation) string {
	return k.String() + "#" + strconv.FormatUint(gen.epoch, 10) + "." + strconv.FormatUint(gen.family, 10)
}

func parseKey(s string) Key {
	parts := strings.Split(s, keySep)
	return Key{Family: Family(parts[0]), Params: parts[1:]}
}
