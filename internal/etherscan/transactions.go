package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"cryptowatch/internal/fetcher"
	"cryptowatch/internal/ratelimit"

	"github.com/shopspring/decimal"
	"resty.dev/v3"
)

const (
	// DefaultBaseURL is the Etherscan v2 multichain endpoint.
	DefaultBaseURL = "https://api.etherscan.io/v2/api"

	// DefaultLimit is how many recent transactions are kept per address.
	DefaultLimit = 5

	// weiDecimals is the exponent between wei and ETH
	weiDecimals = 18

	noTransactionsMessage = "No transactions found"
)

// Direction of a transaction relative to the monitored address
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transaction is one normal transaction touching the monitored address
type Transaction struct {
	Hash      string          `json:"hash"`
	Block     uint64          `json:"block_number"`
	Time      time.Time       `json:"time"`
	Direction Direction       `json:"direction"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	ValueETH  decimal.Decimal `json:"value"`
}

// TxListResponse represents the Etherscan account/txlist response.
// Result is an array on success and a message string on most errors.
type TxListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type rawTransaction struct {
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

// TransactionsFetcher fetches the latest transactions of an Ethereum address
type TransactionsFetcher struct {
	apiKey  string
	address string
	limit   int
	client  *resty.Client
	limiter *ratelimit.Limiter
}

// NewTransactionsFetcher creates a new transaction list fetcher
func NewTransactionsFetcher(apiKey, address string, limit int, client *resty.Client, limiter *ratelimit.Limiter) *TransactionsFetcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &TransactionsFetcher{
		apiKey:  apiKey,
		address: address,
		limit:   limit,
		client:  client,
		limiter: limiter,
	}
}

// Item returns the monitored address
func (f *TransactionsFetcher) Item() fetcher.Item {
	return fetcher.Item{
		Source: string(ratelimit.SourceEtherscan),
		ID:     f.address,
		Label:  f.address,
	}
}

// Fetch retrieves the most recent transactions, newest first
func (f *TransactionsFetcher) Fetch(ctx context.Context) ([]Transaction, error) {
	if err := f.limiter.Wait(ctx, ratelimit.SourceEtherscan); err != nil {
		return nil, fetcher.Classify(err)
	}

	var result TxListResponse

	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"chainid":    "1",
			"module":     "account",
			"action":     "txlist",
			"address":    f.address,
			"startblock": "0",
			"endblock":   "99999999",
			"page":       "1",
			"offset":     strconv.Itoa(f.limit),
			"sort":       "desc",
			"apikey":     f.apiKey,
		}).
		Get("")

	if err != nil {
		return nil, fetcher.Classify(err)
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(resp.StatusCode())
	}
	if err := fetcher.DecodeJSON(resp, &result); err != nil {
		return nil, err
	}

	if result.Status != "1" {
		if result.Message == noTransactionsMessage {
			return []Transaction{}, nil
		}
		return nil, sourceError(result)
	}

	var raw []rawTransaction
	if err := json.Unmarshal(result.Result, &raw); err != nil {
		return nil, fetcher.NewParseError("unexpected txlist result", err)
	}

	if len(raw) > f.limit {
		raw = raw[:f.limit]
	}

	txs := make([]Transaction, 0, len(raw))
	for _, r := range raw {
		tx, err := f.convert(r)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, nil
}

func (f *TransactionsFetcher) convert(r rawTransaction) (Transaction, error) {
	block, err := strconv.ParseUint(r.BlockNumber, 10, 64)
	if err != nil {
		return Transaction{}, fetcher.NewParseError("failed to parse block number", err)
	}

	ts, err := strconv.ParseInt(r.TimeStamp, 10, 64)
	if err != nil {
		return Transaction{}, fetcher.NewParseError("failed to parse timestamp", err)
	}

	// Convert wei (string) to big.Int, then to ETH
	wei, ok := new(big.Int).SetString(r.Value, 10)
	if !ok {
		return Transaction{}, fetcher.NewParseError(fmt.Sprintf("failed to parse value: %s", r.Value), nil)
	}

	direction := DirectionIn
	if strings.EqualFold(r.From, f.address) {
		direction = DirectionOut
	}

	return Transaction{
		Hash:      r.Hash,
		Block:     block,
		Time:      time.Unix(ts, 0).UTC(),
		Direction: direction,
		From:      r.From,
		To:        r.To,
		ValueETH:  decimal.NewFromBigInt(wei, -weiDecimals),
	}, nil
}

// sourceError turns a status "0" payload into a FetchError. Etherscan puts
// the human readable reason in result.
func sourceError(resp TxListResponse) *fetcher.FetchError {
	detail := resp.Message
	var msg string
	if json.Unmarshal(resp.Result, &msg) == nil && msg != "" {
		detail = fmt.Sprintf("%s: %s", resp.Message, msg)
	}

	if strings.Contains(strings.ToLower(detail), "rate limit") {
		return fetcher.NewRateLimitError(0, detail)
	}
	return fetcher.NewSourceError("etherscan: " + detail)
}

// ValidAddress reports whether s looks like a hex encoded 20 byte address.
func ValidAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
