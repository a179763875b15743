package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
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

// UTXOCollector collects deposit/withdraw activity for UTXO-model whales
// from an Esplora-style block explorer API.
type UTXOCollector struct {
	baseURL     string
	httpClient  *http.Client
	checkpoints *storage.CheckpointRepository
	trades      *storage.TradeRepository
	events      *storage.EventRepository
	oracle      *priceoracle.Oracle
	thresholds  EventThresholds
	breaker     *circuitbreaker.CircuitBreaker
}

// NewUTXOCollector creates a new UTXO collector.
func NewUTXOCollector(baseURL string, requestTimeout time.Duration, checkpoints *storage.CheckpointRepository, trades *storage.TradeRepository, events *storage.EventRepository, oracle *priceoracle.Oracle, thresholds EventThresholds) *UTXOCollector {
	return &UTXOCollector{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: requestTimeout},
		checkpoints: checkpoints,
		trades:      trades,
		events:      events,
		oracle:      oracle,
		thresholds:  thresholds,
		breaker:     circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("utxo-api")),
	}
}

// Source identifies this collector's chain.
func (c *UTXOCollector) Source() string {
	return string(types.ChainUTXO)
}

type esploraTx struct {
	TxID   string `json:"txid"`
	Status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockTime   int64 `json:"block_time"`
		BlockHeight int64 `json:"block_height"`
	} `json:"status"`
	Vin []struct {
		Prevout struct {
			ScriptPubKeyAddress string `json:"scriptpubkey_address"`
			Value                int64  `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value                int64  `json:"value"`
	} `json:"vout"`
}

// Tick fetches strictly-newer transactions for whale's address since its
// last checkpoint, paginating through the Esplora API by the "last seen
// txid" continuation token convention.
func (c *UTXOCollector) Tick(ctx context.Context, whale *models.Whale) (*TickResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{"whale": whale.ID, "source": "utxo"})

	checkpoint, err := c.checkpoints.Get(ctx, whale.ID, types.ChainUTXO)
	if err != nil {
		if !types.IsKind(err, types.KindNotFound) {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		checkpoint = &models.IngestionCheckpoint{WhaleID: whale.ID, Source: types.ChainUTXO}
	}

	txs, err := c.fetchPage(ctx, whale.Address, checkpoint.ContinuationToken)
	if err != nil {
		return nil, err
	}

	result := &TickResult{}
	var maxTS time.Time
	var lastTxID string

	for _, tx := range txs {
		if !tx.Status.Confirmed {
			continue
		}
		txTime := time.Unix(tx.Status.BlockTime, 0).UTC()
		if !checkpoint.LastTimestamp.IsZero() && !txTime.After(checkpoint.LastTimestamp) {
			continue
		}

		exists, err := c.trades.ExistsByDedupeKey(ctx, whale.ID, tx.TxID)
		if err != nil {
			logger.WithError(err).Warn("failed to check trade existence, proceeding")
		} else if exists {
			continue
		}

		netSats := int64(0)
		for _, in := range tx.Vin {
			if in.Prevout.ScriptPubKeyAddress == whale.Address {
				netSats -= in.Prevout.Value
			}
		}
		for _, out := range tx.Vout {
			if out.ScriptPubKeyAddress == whale.Address {
				netSats += out.Value
			}
		}
		if netSats == 0 {
			continue
		}

		direction := types.DirectionDeposit
		if netSats < 0 {
			direction = types.DirectionWithdraw
		}
		amount := decimal.New(netSats, 0).Div(decimal.New(1, 8)) // sats -> BTC

		txHash := tx.TxID
		trade := &models.Trade{
			ID:          newTradeID(),
			WhaleID:     whale.ID,
			Timestamp:   txTime,
			Source:      types.SourceOnchain,
			Platform:    "utxo",
			Direction:   direction,
			BaseAsset:   "BTC",
			BaseAmount:  amount,
			QuoteAmount: decimal.Zero,
			TxHash:      &txHash,
		}

		if price, err := c.oracle.Spot(ctx, "BTC"); err == nil {
			usd := amount.Abs().Mul(price)
			trade.ValueUSD = &usd
		}

		result.NewTrades = append(result.NewTrades, trade)
		if event := c.classifyEvent(trade); event != nil {
			result.NewEvents = append(result.NewEvents, event)
		}

		if txTime.After(maxTS) {
			maxTS = txTime
		}
		lastTxID = tx.TxID
	}

	sort.SliceStable(result.NewTrades, func(i, j int) bool {
		return result.NewTrades[i].Timestamp.Before(result.NewTrades[j].Timestamp)
	})
	sort.SliceStable(result.NewEvents, func(i, j int) bool {
		return result.NewEvents[i].Timestamp.Before(result.NewEvents[j].Timestamp)
	})

	if len(result.NewTrades) > 0 {
		if err := c.trades.BatchInsert(ctx, result.NewTrades); err != nil {
			return nil, fmt.Errorf("failed to persist trades: %w", err)
		}
		for _, e := range result.NewEvents {
			if err := c.events.Insert(ctx, e); err != nil {
				logger.WithError(err).Warn("failed to persist event")
			}
		}
	}

	if !maxTS.IsZero() {
		checkpoint.Advance(maxTS, nil)
		checkpoint.ContinuationToken = lastTxID
		checkpoint.UpdatedAt = time.Now().UTC()
		if err := c.checkpoints.Upsert(ctx, checkpoint); err != nil {
			return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
		}
	}

	return result, nil
}

func (c *UTXOCollector) fetchPage(ctx context.Context, address, afterTxID string) ([]esploraTx, error) {
	url := fmt.Sprintf("%s/address/%s/txs", c.baseURL, address)
	if afterTxID != "" {
		url = fmt.Sprintf("%s/chain/%s", url, afterTxID)
	}

	var txs []esploraTx
	err := c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("utxo api returned status %d: %s", resp.StatusCode, string(body))
			}
			return json.Unmarshal(body, &txs)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch utxo transactions: %w", err)
	}
	return txs, nil
}

func (c *UTXOCollector) classifyEvent(t *models.Trade) *models.Event {
	if t.ValueUSD == nil || t.ValueUSD.LessThan(c.thresholds.LargeTransfer) {
		return nil
	}
	return &models.Event{
		ID:        newTradeID(),
		WhaleID:   t.WhaleID,
		Timestamp: t.Timestamp,
		Type:      types.EventLargeTransfer,
		Summary:   fmt.Sprintf("large BTC movement: $%s", t.ValueUSD.StringFixed(0)),
		ValueUSD:  *t.ValueUSD,
		TxHash:    t.TxHash,
	}
}
