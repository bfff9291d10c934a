package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the narrow contract of the RegistroMensajes ledger as consumed by
// the sync engine: a full read, an append and a confirm. The gateway signs and
// sends transactions on behalf of the from identity; signing is not done here.
type Client interface {
	ReadAll(ctx context.Context) ([]Entry, error)
	Append(ctx context.Context, from, content, fileCID string) (TxResult, error)
	Confirm(ctx context.Context, from string, position int64) (TxResult, error)
}

// GatewayClient talks to a contract gateway that fronts one deployment of the
// RegistroMensajes contract on a given network.
type GatewayClient struct {
	baseURL    string
	contract   string
	writeToken string
	httpClient *http.Client
}

func NewGatewayClient(baseURL, contractAddr, writeToken string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		contract:   contractAddr,
		writeToken: writeToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ContractAddress reports the deployment this client is bound to.
func (c *GatewayClient) ContractAddress() string {
	return c.contract
}

// wireMessage is the gateway's representation of one contract tuple. The
// contract does not return positions; ReadAll assigns them from array order.
type wireMessage struct {
	Contenido  string `json:"contenido"`
	ArchivoCID string `json:"archivo_cid"`
	Estado     int    `json:"estado"`
	Timestamp  int64  `json:"timestamp"`
	Remitente  string `json:"remitente"`
}

type readAllResponse struct {
	Mensajes []wireMessage `json:"mensajes"`
}

func (c *GatewayClient) ReadAll(ctx context.Context) ([]Entry, error) {
	url := fmt.Sprintf("%s/v1/contracts/%s/mensajes", c.baseURL, c.contract)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gateway read: status=%d body=%s", resp.StatusCode, string(body))
	}
	var out readAllResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, 8<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("gateway read: decode: %w", err)
	}
	entries := make([]Entry, 0, len(out.Mensajes))
	for i, m := range out.Mensajes {
		entries = append(entries, Entry{
			Position:  int64(i),
			Sender:    m.Remitente,
			Content:   m.Contenido,
			FileCID:   m.ArchivoCID,
			State:     State(m.Estado),
			Timestamp: m.Timestamp,
		})
	}
	return entries, nil
}

type appendRequest struct {
	From       string `json:"from"`
	Contenido  string `json:"contenido"`
	ArchivoCID string `json:"archivo_cid,omitempty"`
}

func (c *GatewayClient) Append(ctx context.Context, from, content, fileCID string) (TxResult, error) {
	url := fmt.Sprintf("%s/v1/contracts/%s/mensajes", c.baseURL, c.contract)
	return c.sendTx(ctx, url, appendRequest{From: from, Contenido: content, ArchivoCID: fileCID})
}

type confirmRequest struct {
	From string `json:"from"`
}

func (c *GatewayClient) Confirm(ctx context.Context, from string, position int64) (TxResult, error) {
	if position < 0 {
		return TxResult{}, errors.New("negative position")
	}
	url := fmt.Sprintf("%s/v1/contracts/%s/mensajes/%d/confirmar", c.baseURL, c.contract, position)
	return c.sendTx(ctx, url, confirmRequest{From: from})
}

func (c *GatewayClient) sendTx(ctx context.Context, url string, payload any) (TxResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return TxResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return TxResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.writeToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.writeToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TxResult{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TxResult{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return TxResult{}, fmt.Errorf("gateway write: status=%d body=%s", resp.StatusCode, string(body))
	}
	var out TxResult
	if err := json.Unmarshal(body, &out); err != nil {
		return TxResult{}, fmt.Errorf("gateway write: decode: %w", err)
	}
	return out, nil
}
