// Package bradesco adapts the Bradesco open-banking billing API to the
// titles.Provider contract. Unlike Sicoob, the list endpoint already returns
// complete records, so no enrichment is exposed.
package bradesco

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/assusa/viabot/internal/bank"
	"github.com/assusa/viabot/internal/titles"
)

// Options configures the client.
type Options struct {
	BaseURL         string
	APIPrefix       string
	ClientID        string
	BeneficiaryCNPJ string
}

// Client talks to the Bradesco billing API.
type Client struct {
	opts       Options
	httpClient *http.Client
	retry      bank.RetryOptions
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/v1/boleto"
	}
	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      bank.DefaultRetryOptions(),
	}
}

// Bank returns the provider tag.
func (c *Client) Bank() titles.Bank { return titles.BankBradesco }

type tituloRecord struct {
	NossoNumero    string  `json:"nossoNumero"`
	SeuNumero      string  `json:"seuNumero"`
	ValorTitulo    float64 `json:"valorTitulo"`
	DataVencimento string  `json:"dataVencimento"`
	Situacao       string  `json:"situacao"`
	LinhaDigitavel string  `json:"linhaDigitavel"`
	NomeBeneficiario string `json:"nomeBeneficiario"`
	NomePagador    string  `json:"nomePagador"`
}

type consultaResponse struct {
	Titulos []tituloRecord `json:"titulos"`
}

// ListOpenTitles queries the payer's titles by tax ID.
func (c *Client) ListOpenTitles(ctx context.Context, identifier string) ([]titles.Title, error) {
	reqBody := map[string]string{
		"cpfCnpjPagador":     identifier,
		"cnpjBeneficiario":   c.opts.BeneficiaryCNPJ,
	}
	var out consultaResponse
	if err := c.postJSON(ctx, c.opts.APIPrefix+"/titulo-consulta", reqBody, &out); err != nil {
		return nil, err
	}

	result := make([]titles.Title, 0, len(out.Titulos))
	for _, rec := range out.Titulos {
		result = append(result, rec.toTitle())
	}
	return result, nil
}

// GetDocument is not offered by this backend; the pipeline falls through to
// GetBillData and renders the document itself.
func (c *Client) GetDocument(ctx context.Context, title titles.Title) ([]byte, error) {
	return nil, nil
}

// GetBillData re-queries the title and returns its structured data. Returns
// (nil, nil) when the backend no longer knows the title.
func (c *Client) GetBillData(ctx context.Context, title titles.Title) (*titles.BillData, error) {
	reqBody := map[string]string{
		"nossoNumero":      title.NossoNumero,
		"cnpjBeneficiario": c.opts.BeneficiaryCNPJ,
	}
	var out consultaResponse
	if err := c.postJSON(ctx, c.opts.APIPrefix+"/titulo-consulta", reqBody, &out); err != nil {
		return nil, err
	}
	if len(out.Titulos) == 0 {
		return nil, nil
	}
	rec := out.Titulos[0]
	dueDate, _ := time.Parse("2006-01-02", rec.DataVencimento)
	return &titles.BillData{
		DigitableLine: rec.LinhaDigitavel,
		Amount:        rec.ValorTitulo,
		DueDate:       dueDate,
		NossoNumero:   rec.NossoNumero,
		Beneficiary:   rec.NomeBeneficiario,
		Payer:         rec.NomePagador,
	}, nil
}

// postJSON performs an authenticated POST with transport-level retry.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	body, err := bank.Retry(ctx, c.retry, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.opts.BaseURL, "/")+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Brad-Client-Id", c.opts.ClientID)

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

func (rec tituloRecord) toTitle() titles.Title {
	dueDate, _ := time.Parse("2006-01-02", rec.DataVencimento)
	return titles.Title{
		NossoNumero: rec.NossoNumero,
		DocumentRef: rec.SeuNumero,
		Amount:      rec.ValorTitulo,
		DueDate:     dueDate,
		Status:      normalizeStatus(rec.Situacao),
		Bank:        titles.BankBradesco,
	}
}

func normalizeStatus(situacao string) string {
	switch strings.ToLower(situacao) {
	case "aberto", "em aberto", "registrado":
		return "OPEN"
	case "liquidado", "baixado":
		return "CLOSED"
	default:
		return strings.ToUpper(situacao)
	}
}
