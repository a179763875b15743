package models

import (
	"encoding/json"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/whalewatch/engine/internal/types"
)

// Whale is a tracked wallet identified by (chain, address).
type Whale struct {
	ID             string                     `json:"id" db:"id"`
	Chain          types.ChainID              `json:"chain" db:"chain"`
	Address        string                     `json:"address" db:"address"`
	Classification types.WhaleClassification  `json:"classification" db:"classification"`
	Labels         mapset.Set[string]         `json:"-" db:"-"`
	FirstSeen      time.Time                  `json:"firstSeen" db:"first_seen"`
	LastActive     time.Time                  `json:"lastActive" db:"last_active"`
}

// LabelsSlice returns Labels as a sorted-free slice, safe for JSON/db encoding.
func (w *Whale) LabelsSlice() []string {
	if w.Labels == nil {
		return nil
	}
	return w.Labels.ToSlice()
}

// SetLabels replaces the label set from a plain slice.
func (w *Whale) SetLabels(labels []string) {
	w.Labels = mapset.NewSet(labels...)
}

// ExplorerURL derives the external explorer link for the whale's chain.
func (w *Whale) ExplorerURL() string {
	switch w.Chain {
	case types.ChainEVM:
		return fmt.Sprintf("https://etherscan.io/address/%s", w.Address)
	case types.ChainUTXO:
		return fmt.Sprintf("https://mempool.space/address/%s", w.Address)
	case types.ChainPerp:
		return fmt.Sprintf("https://app.hyperliquid.xyz/explorer/address/%s", w.Address)
	default:
		return ""
	}
}

// MarshalJSON flattens Labels into a plain string slice for the wire format.
func (w Whale) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID             string                     `json:"id"`
		Chain          types.ChainID              `json:"chain"`
		Address        string                     `json:"address"`
		Classification types.WhaleClassification  `json:"classification"`
		Labels         []string                   `json:"labels"`
		FirstSeen      time.Time                  `json:"firstSeen"`
		LastActive     time.Time                  `json:"lastActive"`
		ExplorerURL    string                     `json:"explorerUrl"`
	}
	labels := w.LabelsSlice()
	if labels == nil {
		labels = []string{}
	}
	return json.Marshal(alias{
		ID:             w.ID,
		Chain:          w.Chain,
		Address:        w.Address,
		Classification: w.Classification,
		Labels:         labels,
		FirstSeen:      w.FirstSeen,
		LastActive:     w.LastActive,
		ExplorerURL:    w.ExplorerURL(),
	})
}
