// Package document builds and validates second-copy PDF documents. Bank-made
// documents are validated and passed through unchanged; when only structured
// bill data is available, a minimal single-page document is rendered from it.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/assusa/viabot/internal/titles"
)

// ErrInvalidDocument indicates bytes that are not a readable PDF.
var ErrInvalidDocument = errors.New("document is not a valid PDF")

// Validate checks that buf parses as a PDF with at least one page. The
// reader library panics on some malformed inputs, so parsing is fenced off
// with a recover.
func Validate(buf []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidDocument, r)
		}
	}()

	if !bytes.HasPrefix(buf, []byte("%PDF-")) {
		return ErrInvalidDocument
	}
	r, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if r.NumPage() < 1 {
		return fmt.Errorf("%w: no pages", ErrInvalidDocument)
	}
	return nil
}

// BuildFromBankPDF validates a ready-made bank document and returns it
// unchanged.
func BuildFromBankPDF(buf []byte) ([]byte, error) {
	if err := Validate(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// BuildFromData renders a minimal second-copy document from structured bill
// data.
func BuildFromData(data titles.BillData) ([]byte, error) {
	lines := []string{
		"SEGUNDA VIA DE BOLETO",
		"",
		"Linha digitavel: " + data.DigitableLine,
		fmt.Sprintf("Valor: R$ %.2f", data.Amount),
		"Vencimento: " + data.DueDate.Format("02/01/2006"),
		"Nosso numero: " + data.NossoNumero,
		"Beneficiario: " + data.Beneficiary,
		"Pagador: " + data.Payer,
	}
	return writePDF(lines), nil
}

// writePDF emits a single-page PDF with one text line per entry. Object
// offsets are recorded as the buffer grows so the xref table is exact.
func writePDF(lines []string) []byte {
	var content bytes.Buffer
	content.WriteString("BT\n/F1 12 Tf\n72 780 Td\n")
	for i, line := range lines {
		if i > 0 {
			content.WriteString("0 -20 Td\n")
		}
		fmt.Fprintf(&content, "(%s) Tj\n", escapeText(line))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xrefStart)

	return buf.Bytes()
}

// escapeText escapes the characters PDF string literals reserve.
func escapeText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
