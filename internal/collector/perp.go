package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/circuitbreaker"
	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/priceoracle"
	"github.com/whalewatch/engine/internal/retry"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

// PerpCollector collects clearinghouse positions and fill history for
// whales tracked on a Hyperliquid-style perpetuals exchange.
//
// Open positions are always replaced wholesale from the clearinghouse
// snapshot (the source of truth for "what is open right now"); historical
// fills are the source of truth for realized PnL and trade history. The
// two are never mixed: a position snapshot never backfills Trade rows,
// and fills never override the live position state.
type PerpCollector struct {
	infoURL     string
	httpClient  *http.Client
	checkpoints *storage.CheckpointRepository
	trades      *storage.TradeRepository
	events      *storage.EventRepository
	holdings    *storage.HoldingRepository
	oracle      *priceoracle.Oracle
	thresholds  EventThresholds
	breaker     *circuitbreaker.CircuitBreaker
}

// NewPerpCollector creates a new perp collector.
func NewPerpCollector(infoURL string, requestTimeout time.Duration, checkpoints *storage.CheckpointRepository, trades *storage.TradeRepository, events *storage.EventRepository, holdings *storage.HoldingRepository, oracle *priceoracle.Oracle, thresholds EventThresholds) *PerpCollector {
	return &PerpCollector{
		infoURL:     strings.TrimRight(infoURL, "/"),
		httpClient:  &http.Client{Timeout: requestTimeout},
		checkpoints: checkpoints,
		trades:      trades,
		events:      events,
		holdings:    holdings,
		oracle:      oracle,
		thresholds:  thresholds,
		breaker:     circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("perp-info-api")),
	}
}

// Source identifies this collector's chain.
func (c *PerpCollector) Source() string {
	return string(types.ChainPerp)
}

type perpPosition struct {
	Coin        string `json:"coin"`
	Szi         string `json:"szi"` // signed size: positive long, negative short
	EntryPx     string `json:"entryPx"`
	PositionValue string `json:"positionValue"`
}

type perpClearinghouseState struct {
	AssetPositions []struct {
		Position perpPosition `json:"position"`
	} `json:"assetPositions"`
}

type perpFill struct {
	Coin    string `json:"coin"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"` // "B" buy/long-open, "A" sell/short-open
	Time    int64  `json:"time"`
	Tid     int64  `json:"tid"`
	ClosedPnl string `json:"closedPnl"`
	Dir     string `json:"dir"` // "Open Long", "Close Long", "Open Short", "Close Short"
}

// Tick replaces the whale's open perp positions wholesale from the
// clearinghouse snapshot, then fetches strictly-newer fills since the
// last checkpoint and records them as Trade rows.
func (c *PerpCollector) Tick(ctx context.Context, whale *models.Whale) (*TickResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{"whale": whale.ID, "source": "perp"})

	if err := c.refreshPositions(ctx, whale); err != nil {
		logger.WithError(err).Warn("failed to refresh perp positions")
	}

	result, err := c.collectFills(ctx, whale)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *PerpCollector) refreshPositions(ctx context.Context, whale *models.Whale) error {
	var state perpClearinghouseState
	err := c.post(ctx, map[string]interface{}{"type": "clearinghouseState", "user": whale.Address}, &state)
	if err != nil {
		return fmt.Errorf("failed to fetch clearinghouse state: %w", err)
	}

	now := time.Now().UTC()
	holdings := make([]*models.Holding, 0, len(state.AssetPositions))
	for _, ap := range state.AssetPositions {
		size, err := decimal.NewFromString(ap.Position.Szi)
		if err != nil {
			continue
		}
		valueUSD, _ := decimal.NewFromString(ap.Position.PositionValue)
		holdings = append(holdings, &models.Holding{
			WhaleID:   whale.ID,
			Asset:     ap.Position.Coin,
			Chain:     types.ChainPerp,
			Amount:    size,
			ValueUSD:  valueUSD.Abs(),
			UpdatedAt: now,
		})
	}

	if err := c.holdings.ReplaceAll(ctx, whale.ID, holdings); err != nil {
		return fmt.Errorf("failed to persist perp positions: %w", err)
	}

	checkpoint, err := c.checkpoints.Get(ctx, whale.ID, types.ChainPerp)
	if err != nil {
		if !types.IsKind(err, types.KindNotFound) {
			return err
		}
		checkpoint = &models.IngestionCheckpoint{WhaleID: whale.ID, Source: types.ChainPerp}
	}
	checkpoint.LastPositionSnapshot = &now
	checkpoint.UpdatedAt = now
	return c.checkpoints.Upsert(ctx, checkpoint)
}

func (c *PerpCollector) collectFills(ctx context.Context, whale *models.Whale) (*TickResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{"whale": whale.ID, "source": "perp"})

	checkpoint, err := c.checkpoints.Get(ctx, whale.ID, types.ChainPerp)
	if err != nil {
		if !types.IsKind(err, types.KindNotFound) {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		checkpoint = &models.IngestionCheckpoint{WhaleID: whale.ID, Source: types.ChainPerp}
	}

	var fills []perpFill
	startTime := int64(0)
	if !checkpoint.LastTimestamp.IsZero() {
		startTime = checkpoint.LastTimestamp.UnixMilli()
	}
	err = c.post(ctx, map[string]interface{}{"type": "userFills", "user": whale.Address, "startTime": startTime}, &fills)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fills: %w", err)
	}

	result := &TickResult{}
	var maxTS time.Time

	for _, f := range fills {
		ts := time.UnixMilli(f.Time).UTC()
		if !checkpoint.LastTimestamp.IsZero() && !ts.After(checkpoint.LastTimestamp) {
			continue
		}

		dedupe := fmt.Sprintf("fill-%d", f.Tid)
		exists, err := c.trades.ExistsByDedupeKey(ctx, whale.ID, dedupe)
		if err != nil {
			logger.WithError(err).Warn("failed to check trade existence, proceeding")
		} else if exists {
			continue
		}

		size, _ := decimal.NewFromString(f.Sz)
		price, _ := decimal.NewFromString(f.Px)
		direction := directionForFill(f.Dir)
		if direction == types.DirectionShort || direction == types.DirectionCloseLong {
			size = size.Neg()
		}

		trade := &models.Trade{
			ID:          newTradeID(),
			WhaleID:     whale.ID,
			Timestamp:   ts,
			Source:      types.SourcePerp,
			Platform:    "hyperliquid",
			Direction:   direction,
			BaseAsset:   f.Coin,
			BaseAmount:  size,
			QuoteAmount: size.Abs().Mul(price),
			TxHash:      &dedupe,
		}
		usd := size.Abs().Mul(price)
		trade.ValueUSD = &usd

		if pnl, perr := decimal.NewFromString(f.ClosedPnl); perr == nil && !pnl.IsZero() {
			trade.RealizedPnLUSD = &pnl
		}

		result.NewTrades = append(result.NewTrades, trade)
		if event := c.classifyEvent(trade); event != nil {
			result.NewEvents = append(result.NewEvents, event)
		}

		if ts.After(maxTS) {
			maxTS = ts
		}
	}

	sort.SliceStable(result.NewTrades, func(i, j int) bool {
		return result.NewTrades[i].Timestamp.Before(result.NewTrades[j].Timestamp)
	})
	sort.SliceStable(result.NewEvents, func(i, j int) bool {
		return result.NewEvents[i].Timestamp.Before(result.NewEvents[j].Timestamp)
	})

	if len(result.NewTrades) > 0 {
		if err := c.trades.BatchInsert(ctx, result.NewTrades); err != nil {
			return nil, fmt.Errorf("failed to persist fills: %w", err)
		}
		for _, e := range result.NewEvents {
			if err := c.events.Insert(ctx, e); err != nil {
				logger.WithError(err).Warn("failed to persist event")
			}
		}
	}

	if !maxTS.IsZero() {
		checkpoint.Advance(maxTS, nil)
		if err := c.checkpoints.Upsert(ctx, checkpoint); err != nil {
			return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
		}
	}

	return result, nil
}

func directionForFill(dir string) types.TradeDirection {
	switch dir {
	case "Open Long":
		return types.DirectionLong
	case "Open Short":
		return types.DirectionShort
	case "Close Long":
		return types.DirectionCloseLong
	case "Close Short":
		return types.DirectionCloseShort
	default:
		return types.DirectionLong
	}
}

func (c *PerpCollector) classifyEvent(t *models.Trade) *models.Event {
	if t.ValueUSD == nil || t.ValueUSD.LessThan(c.thresholds.PerpTrade) {
		return nil
	}
	return &models.Event{
		ID:        newTradeID(),
		WhaleID:   t.WhaleID,
		Timestamp: t.Timestamp,
		Type:      types.EventPerpTrade,
		Summary:   fmt.Sprintf("%s %s of %s at $%s", t.Direction, t.BaseAmount.Abs().String(), t.BaseAsset, t.ValueUSD.StringFixed(0)),
		ValueUSD:  *t.ValueUSD,
		TxHash:    t.TxHash,
	}
}

func (c *PerpCollector) post(ctx context.Context, payload map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.infoURL+"/info", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("perp info api returned status %d", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(out)
		})
	})
}
