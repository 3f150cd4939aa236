package contractdoc

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	doc := NewGenerator(nil).Generate(context.Background(), sampleOffer(), nil)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc))

	out := buf.String()
	require.Contains(t, out, doc.ContractNumber)
	require.Contains(t, out, "Dluga 5, Gdansk")
	require.Contains(t, out, "3100.00")
	require.Contains(t, out, "01.11.2026")
	require.Contains(t, out, `src="data:image/png;base64,`)
	require.Contains(t, out, "Signature unavailable")
}

func TestRender_EscapesPartyData(t *testing.T) {
	offer := sampleOffer()
	offer.Tenant.Name = "<script>alert(1)</script>"
	doc := NewGenerator(nil).Generate(context.Background(), offer, nil)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, doc))

	require.NotContains(t, buf.String(), "<script>alert(1)</script>")
}
