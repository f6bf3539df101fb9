package web

import (
	"cryptowatch/internal/etherscan"
	"cryptowatch/internal/market"
	"cryptowatch/internal/snapshot"
)

type changeView struct {
	Timeframe string `json:"timeframe"`
	Percent   string `json:"percent"`
	Text      string `json:"text"`
	Class     string `json:"class"`
	OK        bool   `json:"ok"`
}

type priceView struct {
	Symbol      string       `json:"symbol"`
	Source      string       `json:"source"`
	Price       string       `json:"price"`
	Change24h   string       `json:"change_24h"`
	Change      changeView   `json:"change"`
	Percentages []changeView `json:"percentages"`
	Volume      string       `json:"volume"`
	Stale       bool         `json:"stale"`
	LastError   string       `json:"last_error,omitempty"`
	UpdatedAt   string       `json:"updated_at"`
}

type pricesResponse struct {
	UpdateTime  string      `json:"update_time"`
	Cycle       uint64      `json:"cycle"`
	RefreshRate float64     `json:"refresh_rate"`
	Instance    string      `json:"instance"`
	Timeframes  []string    `json:"timeframes"`
	Prices      []priceView `json:"prices"`
}

type txView struct {
	Hash        string `json:"hash"`
	BlockNumber uint64 `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
	Direction   string `json:"direction"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

type walletView struct {
	Address      string   `json:"address"`
	Transactions []txView `json:"transactions"`
	Stale        bool     `json:"stale"`
	LastError    string   `json:"last_error,omitempty"`
	UpdatedAt    string   `json:"updated_at"`
}

type transactionsResponse struct {
	UpdateTime string `json:"update_time"`
	Cycle      uint64 `json:"cycle"`
	Instance   string `json:"instance"`
	// Address and Transactions describe the first monitored wallet.
	Address      string       `json:"address"`
	Transactions []txView     `json:"transactions"`
	Wallets      []walletView `json:"wallets"`
}

func newChangeView(tf string, c market.TimeframeChange) changeView {
	if !c.OK {
		return changeView{Timeframe: tf, Text: "--", Class: "flat"}
	}
	return changeView{
		Timeframe: tf,
		Percent:   c.Percent.StringFixed(2),
		Text:      FormatPercent(c.Percent),
		Class:     PercentClass(c.Percent),
		OK:        true,
	}
}

// buildPrices lists records that have a value. Items never fetched
// successfully are left out, stale ones are flagged.
func buildPrices(s *snapshot.Snapshot[market.Quote]) pricesResponse {
	resp := pricesResponse{
		UpdateTime:  FormatTime(s.UpdatedAt),
		Cycle:       s.Cycle,
		RefreshRate: s.EffectiveRate,
		Instance:    s.Instance,
		Prices:      make([]priceView, 0, len(s.Records)),
	}

	for _, rec := range s.Records {
		if !rec.HasValue {
			continue
		}
		q := rec.Value

		changes := make([]changeView, len(q.Changes))
		for i, c := range q.Changes {
			changes[i] = newChangeView(c.Timeframe, c)
		}
		if resp.Timeframes == nil && len(q.Changes) > 0 {
			for _, c := range q.Changes {
				resp.Timeframes = append(resp.Timeframes, c.Timeframe)
			}
		}

		resp.Prices = append(resp.Prices, priceView{
			Symbol:      rec.Label,
			Source:      rec.Source,
			Price:       FormatPrice(q.Price),
			Change24h:   q.ChangePercent.StringFixed(2),
			Change:      newChangeView("24h", market.TimeframeChange{Percent: q.ChangePercent, OK: true}),
			Percentages: changes,
			Volume:      FormatVolume(q.QuoteVolume),
			Stale:       rec.Stale,
			LastError:   rec.LastError,
			UpdatedAt:   FormatTime(rec.UpdatedAt),
		})
	}
	return resp
}

func buildTransactions(s *snapshot.Snapshot[[]etherscan.Transaction]) transactionsResponse {
	resp := transactionsResponse{
		UpdateTime:   FormatTime(s.UpdatedAt),
		Cycle:        s.Cycle,
		Instance:     s.Instance,
		Transactions: []txView{},
		Wallets:      make([]walletView, 0, len(s.Records)),
	}

	for _, rec := range s.Records {
		txs := make([]txView, len(rec.Value))
		for i, tx := range rec.Value {
			txs[i] = txView{
				Hash:        tx.Hash,
				BlockNumber: tx.Block,
				TimeStamp:   FormatTime(tx.Time),
				Direction:   string(tx.Direction),
				From:        tx.From,
				To:          tx.To,
				Value:       tx.ValueETH.StringFixed(6),
			}
		}
		resp.Wallets = append(resp.Wallets, walletView{
			Address:      rec.Label,
			Transactions: txs,
			Stale:        rec.Stale,
			LastError:    rec.LastError,
			UpdatedAt:    FormatTime(rec.UpdatedAt),
		})
	}

	if len(resp.Wallets) > 0 {
		resp.Address = resp.Wallets[0].Address
		resp.Transactions = resp.Wallets[0].Transactions
	}
	return resp
}
