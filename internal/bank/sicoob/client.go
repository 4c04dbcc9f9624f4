// Package sicoob adapts the Sicoob billing API to the titles.Provider
// contract. The list endpoint returns coarse records, so the client also
// implements per-title enrichment.
package sicoob

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/assusa/viabot/internal/bank"
	"github.com/assusa/viabot/internal/titles"
)

// Options configures the client.
type Options struct {
	BaseURL      string
	AuthTokenURL string
	ClientID     string
	ClientSecret string
	ClientNumber string
}

// Client talks to the Sicoob billing API with a cached OAuth token.
type Client struct {
	opts       Options
	httpClient *http.Client
	retry      bank.RetryOptions

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New creates a Client.
func New(opts Options) *Client {
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      bank.DefaultRetryOptions(),
	}
}

// Bank returns the provider tag.
func (c *Client) Bank() titles.Bank { return titles.BankSicoob }

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached client-credentials token, refreshing it when
// less than 30 seconds of validity remain.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.opts.ClientID},
		"client_secret": {c.opts.ClientSecret},
		"scope":         {"boletos_consulta boletos_segunda_via"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.AuthTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

// boletoRecord mirrors the billing API's boleto JSON.
type boletoRecord struct {
	NossoNumero     json.Number `json:"nossoNumero"`
	SeuNumero       string      `json:"seuNumero"`
	Valor           float64     `json:"valor"`
	DataVencimento  string      `json:"dataVencimento"`
	SituacaoBoleto  string      `json:"situacaoBoleto"`
	LinhaDigitavel  string      `json:"linhaDigitavel"`
	NomeBeneficiario string     `json:"nomeBeneficiario"`
	NomePagador     string      `json:"nomePagador"`
}

type listResponse struct {
	Resultado []boletoRecord `json:"resultado"`
}

type detailResponse struct {
	Resultado *boletoRecord `json:"resultado"`
}

type secondCopyResponse struct {
	Resultado struct {
		PDFBoleto string `json:"pdfBoleto"`
	} `json:"resultado"`
}

// ListOpenTitles lists the payer's boletos. Records come back coarse; the
// aggregator calls EnrichTitle for the full picture.
func (c *Client) ListOpenTitles(ctx context.Context, identifier string) ([]titles.Title, error) {
	path := fmt.Sprintf("/pagadores/%s/boletos?numeroCliente=%s", url.PathEscape(identifier), url.QueryEscape(c.opts.ClientNumber))
	var out listResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}

	result := make([]titles.Title, 0, len(out.Resultado))
	for _, b := range out.Resultado {
		result = append(result, b.toTitle())
	}
	return result, nil
}

// EnrichTitle fetches the full record for one boleto. The detail endpoint
// returns payer and digitable-line fields the list call omits.
func (c *Client) EnrichTitle(ctx context.Context, title titles.Title) (titles.Title, error) {
	path := fmt.Sprintf("/boletos?nossoNumero=%s&numeroCliente=%s", url.QueryEscape(title.NossoNumero), url.QueryEscape(c.opts.ClientNumber))
	var out detailResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return titles.Title{}, err
	}
	if out.Resultado == nil {
		// Not found via the detail endpoint: keep the coarse record.
		return title, nil
	}
	full := out.Resultado.toTitle()
	full.ID = title.ID
	return full, nil
}

// GetDocument fetches the bank's ready-made second-copy PDF for the title.
// Returns (nil, nil) when the bank has no document.
func (c *Client) GetDocument(ctx context.Context, title titles.Title) ([]byte, error) {
	path := fmt.Sprintf("/boletos/segunda-via?nossoNumero=%s&gerarPdf=true", url.QueryEscape(title.NossoNumero))
	var out secondCopyResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	if out.Resultado.PDFBoleto == "" {
		return nil, nil
	}
	buf, err := base64.StdEncoding.DecodeString(out.Resultado.PDFBoleto)
	if err != nil {
		return nil, fmt.Errorf("decoding second-copy document: %w", err)
	}
	return buf, nil
}

// GetBillData fetches the structured bill data for the title. Returns
// (nil, nil) when the bank has no record.
func (c *Client) GetBillData(ctx context.Context, title titles.Title) (*titles.BillData, error) {
	path := fmt.Sprintf("/boletos?nossoNumero=%s&numeroCliente=%s", url.QueryEscape(title.NossoNumero), url.QueryEscape(c.opts.ClientNumber))
	var out detailResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	if out.Resultado == nil {
		return nil, nil
	}
	b := out.Resultado
	dueDate, _ := time.Parse("2006-01-02", b.DataVencimento)
	return &titles.BillData{
		DigitableLine: b.LinhaDigitavel,
		Amount:        b.Valor,
		DueDate:       dueDate,
		NossoNumero:   b.NossoNumero.String(),
		Beneficiary:   b.NomeBeneficiario,
		Payer:         b.NomePagador,
	}, nil
}

// getJSON performs an authenticated GET with transport-level retry.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := bank.Retry(ctx, c.retry, func() ([]byte, error) {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.opts.BaseURL, "/")+path, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("requesting %s: %w", path, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (b boletoRecord) toTitle() titles.Title {
	dueDate, _ := time.Parse("2006-01-02", b.DataVencimento)
	return titles.Title{
		NossoNumero: b.NossoNumero.String(),
		DocumentRef: b.SeuNumero,
		Amount:      b.Valor,
		DueDate:     dueDate,
		Status:      normalizeStatus(b.SituacaoBoleto),
		Bank:        titles.BankSicoob,
	}
}

// normalizeStatus maps the API's Portuguese situation strings onto the
// aggregator's status vocabulary.
func normalizeStatus(situacao string) string {
	switch strings.ToLower(situacao) {
	case "aberto", "em aberto":
		return "OPEN"
	case "liquidado", "baixado":
		return "CLOSED"
	default:
		return strings.ToUpper(situacao)
	}
}
