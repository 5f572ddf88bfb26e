package statushttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ratchet/internal/gateway/database"
	"ratchet/internal/position"
	"ratchet/internal/pkg/symbol"
	"ratchet/internal/trader"

	"github.com/gin-gonic/gin"
)

type PositionReader interface {
	Snapshot(symbol string) (position.Snapshot, bool)
	Snapshots() []position.Snapshot
}

type TickSubmitter interface {
	SyncTick(ctx context.Context, symbol string, price float64) error
}

type LedgerReader interface {
	List(ctx context.Context, q database.LedgerQuery) ([]database.LedgerEntry, error)
}

// StatsProvider returns anything JSON encodable.
type StatsProvider func() any

type Router struct {
	positions PositionReader
	ticks     TickSubmitter
	ledger    LedgerReader
	stats     StatsProvider
}

func NewRouter(positions PositionReader, ticks TickSubmitter, ledger LedgerReader, stats StatsProvider) *Router {
	return &Router{positions: positions, ticks: ticks, ledger: ledger, stats: stats}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/positions", r.handlePositions)
	group.GET("/positions/:symbol", r.handlePosition)
	group.GET("/ledger", r.handleLedger)
	group.GET("/stats", r.handleStats)
	if r.ticks != nil {
		group.POST("/ticks", r.handleTick)
	}
}

func (r *Router) handlePositions(c *gin.Context) {
	snaps := r.positions.Snapshots()
	if snaps == nil {
		snaps = []position.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"positions": snaps})
}

func (r *Router) handlePosition(c *gin.Context) {
	sym := symbol.Normalize(c.Param("symbol"))
	snap, ok := r.positions.Snapshot(sym)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol " + sym})
		return
	}
	c.JSON(http.StatusOK, snap)
}

type tickRequest struct {
	Symbol string  `json:"symbol" binding:"required"`
	Price  float64 `json:"price" binding:"required,gt=0"`
}

// handleTick processes a price synchronously on the symbol's worker and
// returns the resulting snapshot.
func (r *Router) handleTick(c *gin.Context) {
	var req tickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sym := symbol.Normalize(req.Symbol)
	if err := r.ticks.SyncTick(c.Request.Context(), sym, req.Price); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, trader.ErrUnknownSymbol) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	snap, _ := r.positions.Snapshot(sym)
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleLedger(c *gin.Context) {
	if r.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	q := database.LedgerQuery{Limit: limit, Offset: offset}
	if raw := strings.TrimSpace(c.Query("symbol")); raw != "" {
		q.Symbol = symbol.Normalize(raw)
	}
	entries, err := r.ledger.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []database.LedgerEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"fills": entries})
}

func (r *Router) handleStats(c *gin.Context) {
	if r.stats == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, r.stats())
}
