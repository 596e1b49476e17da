// Package oracle implements the report sources that supply settlement
// outcome values: a Chainlink aggregator read over an Ethereum RPC, a
// generic JSON-over-HTTP endpoint, and a manual source for development.
// All sources normalize to fixed-point values with two implied decimals.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/updownhq/updown/internal/domain"
)

// AggregatorV3Interface selectors.
var (
	selLatestRoundData = common.FromHex("0xfeaf968c")
	selDecimals        = common.FromHex("0x313ce567")
)

const wordSize = 32

// ChainlinkSource reads the latest answer from a Chainlink price feed
// aggregator contract.
type ChainlinkSource struct {
	client     *ethclient.Client
	feed       common.Address
	staleAfter time.Duration

	mu       sync.Mutex
	decimals *big.Int // cached 10^decimals, fetched on first use
}

// NewChainlinkSource dials the RPC endpoint and wraps the feed at addr.
// Reports older than staleAfter are rejected.
func NewChainlinkSource(ctx context.Context, rpcURL, addr string, staleAfter time.Duration) (*ChainlinkSource, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("oracle: invalid feed address %q", addr)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("oracle: dial %s: %w", rpcURL, err)
	}
	return &ChainlinkSource{
		client:     client,
		feed:       common.HexToAddress(addr),
		staleAfter: staleAfter,
	}, nil
}

var _ domain.ReportSource = (*ChainlinkSource)(nil)

// Close releases the RPC connection.
func (s *ChainlinkSource) Close() {
	s.client.Close()
}

// Report returns the feed's latest answer scaled to two implied decimals.
func (s *ChainlinkSource) Report(ctx context.Context) (int64, error) {
	scale, err := s.feedScale(ctx)
	if err != nil {
		return 0, err
	}

	raw, err := s.call(ctx, selLatestRoundData)
	if err != nil {
		return 0, fmt.Errorf("oracle: latestRoundData: %w", err)
	}
	answer, updatedAt, err := parseRoundData(raw)
	if err != nil {
		return 0, fmt.Errorf("oracle: latestRoundData: %w", err)
	}

	if s.staleAfter > 0 && time.Since(updatedAt) > s.staleAfter {
		return 0, fmt.Errorf("oracle: feed %s stale: last update %s", s.feed, updatedAt.UTC().Format(time.RFC3339))
	}

	return scaleAnswer(answer, scale)
}

// feedScale returns 10^decimals for the feed, fetching it once.
func (s *ChainlinkSource) feedScale(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.decimals != nil {
		return s.decimals, nil
	}

	raw, err := s.call(ctx, selDecimals)
	if err != nil {
		return nil, fmt.Errorf("oracle: decimals: %w", err)
	}
	if len(raw) < wordSize {
		return nil, fmt.Errorf("oracle: decimals: short response (%d bytes)", len(raw))
	}

	dec := int64(raw[wordSize-1])
	s.decimals = new(big.Int).Exp(big.NewInt(10), big.NewInt(dec), nil)
	return s.decimals, nil
}

func (s *ChainlinkSource) call(ctx context.Context, data []byte) ([]byte, error) {
	return s.client.CallContract(ctx, ethereum.CallMsg{
		To:   &s.feed,
		Data: data,
	}, nil)
}

// parseRoundData decodes the (roundId, answer, startedAt, updatedAt,
// answeredInRound) tuple returned by latestRoundData.
func parseRoundData(raw []byte) (*big.Int, time.Time, error) {
	if len(raw) < 5*wordSize {
		return nil, time.Time{}, fmt.Errorf("short response (%d bytes)", len(raw))
	}

	answer := new(big.Int).SetBytes(raw[wordSize : 2*wordSize])
	// int256 two's complement: a set high bit means a negative answer.
	if raw[wordSize]&0x80 != 0 {
		answer.Sub(answer, new(big.Int).Lsh(big.NewInt(1), 256))
	}

	updatedAtUnix := new(big.Int).SetBytes(raw[3*wordSize : 4*wordSize])
	if !updatedAtUnix.IsInt64() {
		return nil, time.Time{}, fmt.Errorf("unreasonable updatedAt")
	}

	return answer, time.Unix(updatedAtUnix.Int64(), 0), nil
}

// scaleAnswer converts a feed answer to two implied decimals.
func scaleAnswer(answer, scale *big.Int) (int64, error) {
	if answer.Sign() <= 0 {
		return 0, fmt.Errorf("oracle: non-positive answer %s", answer)
	}

	scaled := new(big.Int).Mul(answer, big.NewInt(100))
	scaled.Div(scaled, scale)
	if !scaled.IsInt64() {
		return 0, fmt.Errorf("oracle: answer %s overflows int64 after scaling", answer)
	}
	return scaled.Int64(), nil
}
