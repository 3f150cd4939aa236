package contractdoc

import (
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
)

//go:embed contract.html.tmpl
var contractTemplate string

var tmpl = template.Must(template.New("contract").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.Format("02.01.2006") },
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"image": func(s string) bool { return strings.HasPrefix(s, "data:image/") },
	"url":   func(s string) template.URL { return template.URL(s) },
}).Parse(contractTemplate))

type view struct {
	Document
	QRCode template.URL
}

// Render writes the document as a standalone HTML page with a QR code of its number.
func Render(w io.Writer, doc Document) error {
	png, err := qrcode.Encode(doc.ContractNumber, qrcode.Medium, 160)
	if err != nil {
		return fmt.Errorf("encode contract qr: %w", err)
	}
	v := view{
		Document: doc,
		QRCode:   template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)),
	}
	if err := tmpl.Execute(w, v); err != nil {
		return fmt.Errorf("render contract: %w", err)
	}
	return nil
}
