package stats

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/alexivanou/citysearch/internal/config"
	"github.com/alexivanou/citysearch/internal/model"
	"github.com/jmoiron/sqlx"
)

type Stats struct {
	Timestamp time.Time      `json:"timestamp"`
	Memory    MemoryStats    `json:"memory"`
	Database  DatabaseStats  `json:"database"`
	Search    SearchStats    `json:"search"`
	Favorites FavoritesStats `json:"favorites"`
	Runtime   RuntimeStats   `json:"runtime"`
}

type MemoryStats struct {
	Alloc        uint64 `json:"alloc"`
	TotalAlloc   uint64 `json:"total_alloc"`
	Sys          uint64 `json:"sys"`
	NumGC        uint32 `json:"num_gc"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	HeapSys      uint64 `json:"heap_sys"`
	HeapInuse    uint64 `json:"heap_inuse"`
	HeapReleased uint64 `json:"heap_released"`
}

type DatabaseStats struct {
	Type         string      `json:"type"`
	TotalRecords int64       `json:"total_records"`
	SizeBytes    int64       `json:"size_bytes"`
	TableStats   []TableStat `json:"table_stats"`
}

type TableStat struct {
	Name      string `json:"name"`
	RowCount  int64  `json:"row_count"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// SearchStats describes the in-memory index. It is fixed once the catalog is loaded.
type SearchStats struct {
	Index         string `json:"index"`
	CatalogCities int    `json:"catalog_cities"`
	IndexedCities int    `json:"indexed_cities"`
	Nodes         int    `json:"nodes,omitempty"`
}

type FavoritesStats struct {
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type RuntimeStats struct {
	NumGoroutines int   `json:"num_goroutines"`
	NumCPU        int   `json:"num_cpu"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// NewSearchStats describes idx, reading Len and Nodes when it has them
func NewSearchStats(name string, catalogCities int, idx any) SearchStats {
	stats := SearchStats{Index: name, CatalogCities: catalogCities}
	if l, ok := idx.(interface{ Len() int }); ok {
		stats.IndexedCities = l.Len()
	}
	if n, ok := idx.(interface{ Nodes() int }); ok {
		stats.Nodes = n.Nodes()
	}
	return stats
}

// FavoritesLister is the part of the favorites store the collector reads
type FavoritesLister interface {
	List(ctx context.Context) ([]model.City, error)
}

type Collector struct {
	db         *sqlx.DB
	config     config.DBConfig
	search     SearchStats
	favorites  FavoritesLister
	startTime  time.Time
	cachedMem  *MemoryStats
	cacheTime  time.Time
	cacheMutex sync.RWMutex
}

var (
	memStatsCacheDuration = 5 * time.Second
	tables                = []string{"kv_store"}
)

// NewCollector creates a statistics collector. db and favorites may be nil.
func NewCollector(db *sqlx.DB, cfg config.DBConfig, search SearchStats, favorites FavoritesLister) *Collector {
	return &Collector{
		db:        db,
		config:    cfg,
		search:    search,
		favorites: favorites,
		startTime: time.Now(),
	}
}

// Collect gathers memory, database, search, favorites and runtime statistics
func (c *Collector) Collect(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Timestamp: time.Now(),
		Search:    c.search,
	}

	stats.Memory = c.collectMemoryStats()

	dbStats, err := c.collectDatabaseStats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Database = *dbStats
	stats.Favorites = c.collectFavoritesStats(ctx)
	stats.Runtime = c.collectRuntimeStats()

	return stats, nil
}

func (c *Collector) collectMemoryStats() MemoryStats {
	c.cacheMutex.RLock()
	if c.cachedMem != nil && time.Since(c.cacheTime) < memStatsCacheDuration {
		mem := *c.cachedMem
		c.cacheMutex.RUnlock()
		return mem
	}
	c.cacheMutex.RUnlock()

	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mem := MemoryStats{
		Alloc:        m.Alloc,
		TotalAlloc:   m.TotalAlloc,
		Sys:          m.Sys,
		NumGC:        m.NumGC,
		HeapAlloc:    m.HeapAlloc,
		HeapSys:      m.HeapSys,
		HeapInuse:    m.HeapInuse,
		HeapReleased: m.HeapReleased,
	}

	c.cachedMem = &mem
	c.cacheTime = time.Now()

	return mem
}

func (c *Collector) collectDatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{
		Type:       string(c.config.Type),
		TableStats: []TableStat{},
	}
	if c.db == nil {
		return stats, nil
	}

	if totalSize, err := c.getDatabaseSize(ctx); err == nil {
		stats.SizeBytes = totalSize
	}

	for _, table := range tables {
		stat, err := c.getTableStat(ctx, table)
		if err != nil {
			continue
		}
		stats.TableStats = append(stats.TableStats, *stat)
		stats.TotalRecords += stat.RowCount
	}

	return stats, nil
}

func (c *Collector) getDatabaseSize(ctx context.Context) (int64, error) {
	var size int64
	var err error

	if c.config.Type == config.DBTypePostgreSQL {
		err = c.db.GetContext(ctx, &size, "SELECT pg_database_size(current_database())")
	} else {
		err = c.db.GetContext(ctx, &size, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	}

	if err != nil {
		return 0, err
	}
	return size, nil
}

func (c *Collector) getTableStat(ctx context.Context, tableName string) (*TableStat, error) {
	stat := &TableStat{Name: tableName}

	var count int64
	if err := c.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+tableName); err != nil {
		return nil, err
	}
	stat.RowCount = count

	if c.config.Type == config.DBTypePostgreSQL {
		var size int64
		if err := c.db.GetContext(ctx, &size, `SELECT COALESCE(pg_total_relation_size($1::regclass), 0)`, tableName); err == nil {
			stat.SizeBytes = size
		}
	} else {
		// dbstat is only there when SQLite was built with it
		var size int64
		_ = c.db.GetContext(ctx, &size, `SELECT SUM(pgsize) FROM dbstat WHERE name = ?`, tableName)
		stat.SizeBytes = size
	}

	return stat, nil
}

func (c *Collector) collectFavoritesStats(ctx context.Context) FavoritesStats {
	if c.favorites == nil {
		return FavoritesStats{}
	}
	cities, err := c.favorites.List(ctx)
	if err != nil {
		return FavoritesStats{Error: err.Error()}
	}
	return FavoritesStats{Count: len(cities)}
}

func (c *Collector) collectRuntimeStats() RuntimeStats {
	uptime := time.Since(c.startTime).Seconds()
	return RuntimeStats{
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		UptimeSeconds: int64(uptime),
	}
}
