package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/domain"

	"log/slog"
)

// InboundTx is one incoming transfer to the shop's payment address as
// reported by the ledger oracle.
type InboundTx struct {
	Amount decimal.Decimal
	Time   time.Time
}

// TxSource lists recent inbound transactions for an address.
type TxSource interface {
	RecentInbound(ctx context.Context, address string) ([]InboundTx, error)
}

// BlockchainOracle talks to a blockchain.info-compatible API for both the
// BTC/RUB ticker and per-address transaction history. It is treated as
// untrusted and slow: every call is context-bounded and failures surface as
// transient errors.
type BlockchainOracle struct {
	client *http.Client
	base   string
}

const defaultOracleBase = "https://blockchain.info"

// NewBlockchainOracle builds the oracle client. An empty baseURL selects the
// public blockchain.info endpoint; tests point it at a local server.
func NewBlockchainOracle(client *http.Client, baseURL string) *BlockchainOracle {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultOracleBase
	}
	return &BlockchainOracle{client: client, base: baseURL}
}

// Rate fetches the current BTC/RUB rate from the ticker endpoint.
func (o *BlockchainOracle) Rate(ctx context.Context) (decimal.Decimal, error) {
	var payload map[string]struct {
		Last json.Number `json:"last"`
	}
	if err := o.getJSON(ctx, o.base+"/ticker", &payload); err != nil {
		return decimal.Decimal{}, err
	}
	entry, ok := payload["RUB"]
	if !ok {
		return decimal.Decimal{}, domain.Transient("oracle ticker", fmt.Errorf("no RUB entry"))
	}
	rate, err := decimal.NewFromString(entry.Last.String())
	if err != nil {
		return decimal.Decimal{}, domain.Transient("oracle ticker", err)
	}
	return rate, nil
}

type rawAddrResponse struct {
	Txs []struct {
		Time int64 `json:"time"`
		Out  []struct {
			Addr  string `json:"addr"`
			Value int64  `json:"value"`
		} `json:"out"`
	} `json:"txs"`
}

// satoshisPerBTC converts ledger output values to BTC.
var satoshisPerBTC = decimal.New(1, 8)

// RecentInbound returns the incoming transfers to address found in its recent
// transaction history. Amounts are converted from satoshi to BTC.
func (o *BlockchainOracle) RecentInbound(ctx context.Context, address string) ([]InboundTx, error) {
	var payload rawAddrResponse
	if err := o.getJSON(ctx, o.base+"/rawaddr/"+address, &payload); err != nil {
		return nil, err
	}
	var out []InboundTx
	for _, tx := range payload.Txs {
		ts := time.Unix(tx.Time, 0)
		for _, output := range tx.Out {
			if output.Addr != address {
				continue
			}
			out = append(out, InboundTx{
				Amount: decimal.New(output.Value, 0).Div(satoshisPerBTC),
				Time:   ts,
			})
		}
	}
	return out, nil
}

func (o *BlockchainOracle) getJSON(ctx context.Context, url string, dst interface{}) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Transient("oracle request", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return domain.Transient("oracle call", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return domain.Transient("oracle call", fmt.Errorf("status %s", resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return domain.Transient("oracle decode", err)
	}
	logger.Debug(ctx, "service.rates", "oracle.call",
		slog.String("status", "ok"),
		slog.Int("http_code", resp.StatusCode),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}
