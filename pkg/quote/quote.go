// Package quote fetches bridge fee quotes from an Across-style suggested-fees
// API. The engine consumes quotes; it never computes fee curves itself.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Options configures the quote client.
type Options struct {
	Timeout   time.Duration `default:"10s"`
	UserAgent string        `default:"treasury-engine"`
}

// Fee is one fee component of a quote.
type Fee struct {
	Pct   decimal.Decimal
	Total *big.Int
}

// SuggestedFees is a bridge fee quote for one (route, amount).
type SuggestedFees struct {
	TotalRelayFee       Fee
	RelayerCapitalFee   Fee
	RelayerGasFee       Fee
	LPFee               Fee
	QuoteTimestamp      uint32
	FillDeadline        uint32
	ExclusivityDeadline uint32
	ExclusiveRelayer    common.Address
	IsAmountTooLow      bool
	ExpectedFillTime    time.Duration
}

// OutputAmount returns the amount the destination receives after fees.
func (f *SuggestedFees) OutputAmount(inputAmount *big.Int) *big.Int {
	return new(big.Int).Sub(inputAmount, f.TotalRelayFee.Total)
}

// Request identifies the transfer to quote.
type Request struct {
	InputToken         common.Address
	OutputToken        common.Address
	OriginChainID      int64
	DestinationChainID int64
	Amount             *big.Int
}

// Client fetches suggested fees over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	opts    Options
}

// NewClient creates a quote client for the given suggested-fees endpoint.
func NewClient(baseURL string, opts Options) (*Client, error) {
	if err := defaults.Set(&opts); err != nil {
		return nil, fmt.Errorf("failed to apply quote defaults: %w", err)
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
	}, nil
}

type feePayload struct {
	Pct   string `json:"pct"`
	Total string `json:"total"`
}

type suggestedFeesPayload struct {
	TotalRelayFee       feePayload `json:"totalRelayFee"`
	RelayerCapitalFee   feePayload `json:"relayerCapitalFee"`
	RelayerGasFee       feePayload `json:"relayerGasFee"`
	LPFee               feePayload `json:"lpFee"`
	Timestamp           string     `json:"timestamp"`
	FillDeadline        string     `json:"fillDeadline"`
	ExclusivityDeadline string     `json:"exclusivityDeadline"`
	ExclusiveRelayer    string     `json:"exclusiveRelayer"`
	IsAmountTooLow      bool       `json:"isAmountTooLow"`
	ExpectedFillTimeSec string     `json:"expectedFillTimeSec"`
}

func parseFee(p feePayload) (Fee, error) {
	pct, err := decimal.NewFromString(p.Pct)
	if err != nil {
		return Fee{}, fmt.Errorf("invalid fee pct %q: %w", p.Pct, err)
	}
	total, ok := new(big.Int).SetString(p.Total, 10)
	if !ok {
		return Fee{}, fmt.Errorf("invalid fee total %q", p.Total)
	}
	return Fee{Pct: pct, Total: total}, nil
}

func parseUint32(s string) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// GetSuggestedFees fetches a fee quote for the given transfer.
func (c *Client) GetSuggestedFees(ctx context.Context, req Request) (*SuggestedFees, error) {
	params := url.Values{}
	params.Set("inputToken", req.InputToken.Hex())
	params.Set("outputToken", req.OutputToken.Hex())
	params.Set("originChainId", strconv.FormatInt(req.OriginChainID, 10))
	params.Set("destinationChainId", strconv.FormatInt(req.DestinationChainID, 10))
	params.Set("amount", req.Amount.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote service returned status %d", resp.StatusCode)
	}

	var payload suggestedFeesPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	fees := &SuggestedFees{
		QuoteTimestamp:      parseUint32(payload.Timestamp),
		FillDeadline:        parseUint32(payload.FillDeadline),
		ExclusivityDeadline: parseUint32(payload.ExclusivityDeadline),
		IsAmountTooLow:      payload.IsAmountTooLow,
	}
	if payload.ExclusiveRelayer != "" {
		fees.ExclusiveRelayer = common.HexToAddress(payload.ExclusiveRelayer)
	}
	if sec, err := strconv.ParseInt(payload.ExpectedFillTimeSec, 10, 64); err == nil {
		fees.ExpectedFillTime = time.Duration(sec) * time.Second
	}

	if fees.TotalRelayFee, err = parseFee(payload.TotalRelayFee); err != nil {
		return nil, err
	}
	if fees.RelayerCapitalFee, err = parseFee(payload.RelayerCapitalFee); err != nil {
		return nil, err
	}
	if fees.RelayerGasFee, err = parseFee(payload.RelayerGasFee); err != nil {
		return nil, err
	}
	if fees.LPFee, err = parseFee(payload.LPFee); err != nil {
		return nil, err
	}

	return fees, nil
}
