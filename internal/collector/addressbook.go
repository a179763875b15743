package collector

import "strings"

// CatalogVersion identifies the revision of the static exchange/router
// address catalog below. Bump it whenever entries are added or removed so
// that trades classified against an older catalog remain auditable, since
// each trade records the catalog version it was classified against.
const CatalogVersion = 1

// addressKind describes what a cataloged address represents.
type addressKind string

const (
	kindCexHotWallet addressKind = "cex_hot_wallet"
	kindDexRouter    addressKind = "dex_router"
	kindBridge       addressKind = "bridge"
)

type catalogEntry struct {
	label string
	kind  addressKind
}

// evmCatalog is the curated table of known exchange hot wallets, DEX
// routers, and bridge contracts used to classify EVM trade direction and
// exchange-flow events.
var evmCatalog = map[string]catalogEntry{
	"0x28c6c06298d514db089934071355e5743bf21d60": {"binance hot wallet", kindCexHotWallet},
	"0xd551234ae421e3bcba99a0da6d736074f22192ff": {"binance hot wallet 2", kindCexHotWallet},
	"0x21a31ee1afc51d94c2efccaa2092ad1028285549": {"binance hot wallet 3", kindCexHotWallet},
	"0x2faf487a4414fe77e2327f0bf4ae2a264a776ad2": {"fireblocks custody", kindCexHotWallet},
	"0x7a250d5630b4cf539739df2c5dacb4c659f2488d": {"uniswap v2 router", kindDexRouter},
	"0xe592427a0aece92de3edee1f18e0157c05861564": {"uniswap v3 router", kindDexRouter},
	"0x1111111254eeb25477b68fb85ed929f73a960582": {"1inch router", kindDexRouter},
	"0x3ee18b2214aff97000d974cf647e7c347e8fa585": {"wormhole bridge", kindBridge},
	"0x8731d54e9d02c286767d56ac03e8037c07e01e98": {"stargate bridge", kindBridge},
}

func lookup(address string) (catalogEntry, bool) {
	e, ok := evmCatalog[strings.ToLower(address)]
	return e, ok
}

// IsExchangeAddress reports whether address is a known exchange hot wallet.
func IsExchangeAddress(address string) bool {
	e, ok := lookup(address)
	return ok && e.kind == kindCexHotWallet
}

// IsDexRouter reports whether address is a known DEX router contract.
func IsDexRouter(address string) bool {
	e, ok := lookup(address)
	return ok && e.kind == kindDexRouter
}

// Label returns a human-readable label for a cataloged address, or "".
func Label(address string) string {
	e, ok := lookup(address)
	if !ok {
		return ""
	}
	return e.label
}
