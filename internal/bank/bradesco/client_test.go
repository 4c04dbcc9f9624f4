package bradesco

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/assusa/viabot/internal/bank"
	"github.com/assusa/viabot/internal/titles"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(Options{
		BaseURL:         srv.URL,
		ClientID:        "client-1",
		BeneficiaryCNPJ: "12345678000199",
	})
	c.retry = bank.RetryOptions{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	return c
}

func TestListOpenTitles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/boleto/titulo-consulta", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Brad-Client-Id"); got != "client-1" {
			t.Errorf("client id header = %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body["cpfCnpjPagador"] != "52998224725" {
			t.Errorf("cpfCnpjPagador = %q", body["cpfCnpjPagador"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"titulos": []map[string]any{
				{"nossoNumero": "789012", "seuNumero": "DOC002", "valorTitulo": 200.50, "dataVencimento": "2026-11-30", "situacao": "Registrado"},
			},
		})
	})

	c := newTestClient(t, mux)
	got, err := c.ListOpenTitles(context.Background(), "52998224725")
	if err != nil {
		t.Fatalf("ListOpenTitles: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d titles, want 1", len(got))
	}
	title := got[0]
	if title.NossoNumero != "789012" || title.Status != "OPEN" || title.Bank != titles.BankBradesco {
		t.Errorf("title = %+v", title)
	}
}

func TestGetDocumentAlwaysNil(t *testing.T) {
	c := newTestClient(t, http.NewServeMux())
	doc, err := c.GetDocument(context.Background(), titles.Title{NossoNumero: "789012"})
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc != nil {
		t.Errorf("document = %v, want nil", doc)
	}
}

func TestGetBillDataNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/boleto/titulo-consulta", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"titulos": []map[string]any{}})
	})

	c := newTestClient(t, mux)
	data, err := c.GetBillData(context.Background(), titles.Title{NossoNumero: "789012"})
	if err != nil {
		t.Fatalf("GetBillData: %v", err)
	}
	if data != nil {
		t.Errorf("data = %+v, want nil", data)
	}
}

func TestListPropagatesServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/boleto/titulo-consulta", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := newTestClient(t, mux)
	if _, err := c.ListOpenTitles(context.Background(), "52998224725"); err == nil {
		t.Fatal("ListOpenTitles returned nil error on 503")
	}
}
