// Package types provides common type definitions for the whale tracking engine.
package types

import "time"

// ChainID identifies a tracked source network.
type ChainID string

const (
	// ChainEVM is the tracked EVM-compatible chain.
	ChainEVM ChainID = "evm"
	// ChainUTXO is the tracked UTXO-model chain.
	ChainUTXO ChainID = "utxo"
	// ChainPerp is the tracked perpetuals exchange.
	ChainPerp ChainID = "perp"
)

// DisplayName returns a human-readable name for the chain.
func (c ChainID) DisplayName() string {
	switch c {
	case ChainEVM:
		return "EVM"
	case ChainUTXO:
		return "UTXO"
	case ChainPerp:
		return "Perpetuals"
	default:
		return string(c)
	}
}

// Valid reports whether the chain identifier is one of the known chains.
func (c ChainID) Valid() bool {
	switch c {
	case ChainEVM, ChainUTXO, ChainPerp:
		return true
	default:
		return false
	}
}

// WhaleClassification is the whale's behavioral type, assigned by the classifier.
type WhaleClassification string

const (
	ClassificationUnclassified WhaleClassification = "unclassified"
	ClassificationHolder       WhaleClassification = "holder"
	ClassificationTrader       WhaleClassification = "trader"
	ClassificationHolderTrader WhaleClassification = "holder_trader"
)

// TradeSource identifies where a trade record originated.
type TradeSource string

const (
	SourceOnchain      TradeSource = "onchain"
	SourcePerp         TradeSource = "perp"
	SourceExchangeFlow TradeSource = "exchange_flow"
)

// TradeDirection is the signed action a trade represents.
type TradeDirection string

const (
	DirectionBuy        TradeDirection = "buy"
	DirectionSell       TradeDirection = "sell"
	DirectionDeposit    TradeDirection = "deposit"
	DirectionWithdraw   TradeDirection = "withdraw"
	DirectionLong       TradeDirection = "long"
	DirectionShort      TradeDirection = "short"
	DirectionCloseLong  TradeDirection = "close_long"
	DirectionCloseShort TradeDirection = "close_short"
)

// EventType categorizes a broadcastable derived event.
type EventType string

const (
	EventLargeSwap     EventType = "large_swap"
	EventLargeTransfer EventType = "large_transfer"
	EventExchangeFlow  EventType = "exchange_flow"
	EventPerpTrade     EventType = "perp_trade"
)

// BackfillState is a lifecycle state of a BackfillStatus row.
type BackfillState string

const (
	BackfillIdle    BackfillState = "idle"
	BackfillRunning BackfillState = "running"
	BackfillDone    BackfillState = "done"
	BackfillError   BackfillState = "error"
)

// SessionState is a lifecycle state of a CopierSession.
type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionActive  SessionState = "active"
	SessionStopped SessionState = "stopped"
)

// ErrorKind enumerates the service-wide error taxonomy surfaced to API callers.
type ErrorKind string

const (
	KindUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindRateLimited         ErrorKind = "RATE_LIMITED"
	KindDecodeError         ErrorKind = "DECODE_ERROR"
	KindConflictSkipped     ErrorKind = "CONFLICT_SKIPPED"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindConflict            ErrorKind = "CONFLICT"
	KindInvariant           ErrorKind = "INVARIANT"
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindInternal            ErrorKind = "INTERNAL_ERROR"
)

// ServiceError is a structured, taxonomy-tagged error surfaced to callers.
type ServiceError struct {
	Kind    ErrorKind              `json:"kind"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NewServiceError constructs a ServiceError.
func NewServiceError(kind ErrorKind, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Details: details}
}

// IsKind reports whether err is a *ServiceError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	se, ok := err.(*ServiceError)
	return ok && se.Kind == kind
}

// Cursor is a decoded pagination cursor over (timestamp, id).
type Cursor struct {
	TimestampMicros int64
	ID              int64
}

// TimeWindow bounds a query by [From, To); zero values mean unbounded.
type TimeWindow struct {
	From time.Time
	To   time.Time
}
