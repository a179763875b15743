package collector

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/circuitbreaker"
	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/priceoracle"
	"github.com/whalewatch/engine/internal/retry"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

// transferEventSignature is the ERC-20 Transfer(address,address,uint256) topic hash.
var transferEventSignature = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// EVMCollector collects ERC-20 transfer activity for EVM whales.
type EVMCollector struct {
	client       *ethclient.Client
	checkpoints  *storage.CheckpointRepository
	trades       *storage.TradeRepository
	events       *storage.EventRepository
	oracle       *priceoracle.Oracle
	thresholds   EventThresholds
	breaker      *circuitbreaker.CircuitBreaker
}

// EventThresholds holds the USD thresholds that decide whether a trade
// qualifies as a broadcastable event, per collector source.
type EventThresholds struct {
	LargeSwap     decimal.Decimal
	LargeTransfer decimal.Decimal
	ExchangeFlow  decimal.Decimal
	PerpTrade     decimal.Decimal
}

// NewEVMCollector creates a new EVM collector.
func NewEVMCollector(rpcURL string, checkpoints *storage.CheckpointRepository, trades *storage.TradeRepository, events *storage.EventRepository, oracle *priceoracle.Oracle, thresholds EventThresholds) (*EVMCollector, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial evm rpc: %w", err)
	}
	return &EVMCollector{
		client:      client,
		checkpoints: checkpoints,
		trades:      trades,
		events:      events,
		oracle:      oracle,
		thresholds:  thresholds,
		breaker:     circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("evm-rpc")),
	}, nil
}

// Source identifies this collector's chain.
func (c *EVMCollector) Source() string {
	return string(types.ChainEVM)
}

// Tick fetches strictly-newer ERC-20 transfers for whale since its last
// checkpoint, normalizes and persists them, and advances the checkpoint.
func (c *EVMCollector) Tick(ctx context.Context, whale *models.Whale) (*TickResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{"whale": whale.ID, "source": "evm"})

	checkpoint, err := c.checkpoints.Get(ctx, whale.ID, types.ChainEVM)
	if err != nil {
		if !types.IsKind(err, types.KindNotFound) {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		checkpoint = &models.IngestionCheckpoint{WhaleID: whale.ID, Source: types.ChainEVM}
	}

	var fromBlock uint64
	if checkpoint.LastBlockHeight != nil {
		fromBlock = *checkpoint.LastBlockHeight + 1
	}

	var latest uint64
	err = c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			l, err := c.client.BlockNumber(ctx)
			if err != nil {
				return err
			}
			latest = l
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest block: %w", err)
	}
	if fromBlock > latest {
		return &TickResult{}, nil
	}

	addr := common.HexToAddress(whale.Address)
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(latest),
		Topics:    [][]common.Hash{{transferEventSignature}, {}, {}},
	}

	var logs []ethtypes.Log
	err = c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			l, err := c.client.FilterLogs(ctx, query)
			if err != nil {
				return err
			}
			logs = l
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs: %w", err)
	}

	var relevant []ethtypes.Log
	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		from := common.HexToAddress(l.Topics[1].Hex())
		to := common.HexToAddress(l.Topics[2].Hex())
		if from == addr || to == addr {
			relevant = append(relevant, l)
		}
	}

	result := &TickResult{}
	seen := map[string]bool{}
	var maxBlock uint64 = fromBlock
	var maxTS time.Time

	for _, l := range relevant {
		txHash := l.TxHash.Hex()
		dedupeKey := whale.ID + ":" + txHash
		if seen[dedupeKey] {
			continue
		}
		exists, err := c.trades.ExistsByDedupeKey(ctx, whale.ID, txHash)
		if err != nil {
			logger.WithError(err).Warn("failed to check trade existence, proceeding")
		} else if exists {
			continue
		}
		seen[dedupeKey] = true

		header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(l.BlockNumber))
		ts := time.Now().UTC()
		if err == nil {
			ts = time.Unix(int64(header.Time), 0).UTC()
		}

		amount := decodeTransferAmount(l.Data)
		direction := types.DirectionDeposit
		from := common.HexToAddress(l.Topics[1].Hex())
		if from == addr {
			direction = types.DirectionWithdraw
			amount = amount.Neg()
		}

		trade := &models.Trade{
			ID:        newTradeID(),
			WhaleID:   whale.ID,
			Timestamp: ts,
			Source:    types.SourceOnchain,
			Platform:  "erc20",
			Direction: direction,
			BaseAsset: l.Address.Hex(),
			BaseAmount: amount,
			QuoteAmount: decimal.Zero,
			TxHash:    &txHash,
		}
		version := CatalogVersion
		trade.CatalogVersion = &version

		counterparty := to(l, addr)
		if IsExchangeAddress(counterparty) {
			trade.Source = types.SourceExchangeFlow
			trade.Platform = Label(counterparty)
		}

		if price, err := c.oracle.Spot(ctx, trade.BaseAsset); err == nil {
			usd := amount.Abs().Mul(price)
			trade.ValueUSD = &usd
		}

		result.NewTrades = append(result.NewTrades, trade)

		if l.BlockNumber > maxBlock {
			maxBlock = l.BlockNumber
		}
		if ts.After(maxTS) {
			maxTS = ts
		}

		if event := c.classifyEvent(trade); event != nil {
			result.NewEvents = append(result.NewEvents, event)
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
			return nil, fmt.Errorf("failed to persist trades: %w", err)
		}
		for _, e := range result.NewEvents {
			if err := c.events.Insert(ctx, e); err != nil {
				logger.WithError(err).Warn("failed to persist event")
			}
		}
	}

	checkpoint.LastBlockHeight = &maxBlock
	if !maxTS.IsZero() {
		checkpoint.Advance(maxTS, &maxBlock)
	} else {
		checkpoint.LastBlockHeight = &latest
	}
	checkpoint.UpdatedAt = time.Now().UTC()
	if err := c.checkpoints.Upsert(ctx, checkpoint); err != nil {
		return nil, fmt.Errorf("failed to advance checkpoint: %w", err)
	}

	return result, nil
}

func (c *EVMCollector) classifyEvent(t *models.Trade) *models.Event {
	if t.ValueUSD == nil {
		return nil
	}

	var eventType types.EventType
	var threshold decimal.Decimal
	switch t.Source {
	case types.SourceExchangeFlow:
		eventType, threshold = types.EventExchangeFlow, c.thresholds.ExchangeFlow
	default:
		eventType, threshold = types.EventLargeTransfer, c.thresholds.LargeTransfer
	}

	if t.ValueUSD.LessThan(threshold) {
		return nil
	}

	return &models.Event{
		ID:        newTradeID(),
		WhaleID:   t.WhaleID,
		Timestamp: t.Timestamp,
		Type:      eventType,
		Summary:   fmt.Sprintf("%s moved $%s of %s", strings.ToUpper(string(eventType)), t.ValueUSD.StringFixed(0), t.BaseAsset),
		ValueUSD:  *t.ValueUSD,
		TxHash:    t.TxHash,
	}
}

func decodeTransferAmount(data []byte) decimal.Decimal {
	if len(data) < 32 {
		return decimal.Zero
	}
	amount := new(big.Int).SetBytes(data[len(data)-32:])
	return decimal.NewFromBigInt(amount, 0)
}

func to(l ethtypes.Log, whale common.Address) string {
	from := common.HexToAddress(l.Topics[1].Hex())
	toAddr := common.HexToAddress(l.Topics[2].Hex())
	if from == whale {
		return toAddr.Hex()
	}
	return from.Hex()
}

var tradeIDCounter int64

func newTradeID() int64 {
	return atomic.AddInt64(&tradeIDCounter, 1) + time.Now().UnixNano()
}
