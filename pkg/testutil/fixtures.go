package testutil

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// PDFText is one run of text placed on a fixture page, in PDF points with
// the origin at the bottom left
type PDFText struct {
	X, Y float64
	Size float64
	Text string
}

const (
	fixturePageWidth  = 595
	fixturePageHeight = 842
	courierAdvance    = 600
)

// TextPDF builds a single A4 page PDF whose text layer holds runs, set in
// Courier with WinAnsi encoding so accented Portuguese survives extraction.
func TextPDF(runs ...PDFText) []byte {
	var content bytes.Buffer
	enc := charmap.Windows1252.NewEncoder()
	for _, r := range runs {
		s, err := enc.String(r.Text)
		if err != nil {
			panic(fmt.Sprintf("testutil: %q is not WinAnsi: %v", r.Text, err))
		}
		fmt.Fprintf(&content, "BT /F1 %s Tf %s %s Td (%s) Tj ET\n",
			num(r.Size), num(r.X), num(r.Y), escapePDFString(s))
	}

	widths := make([]string, 256-32)
	for i := range widths {
		widths[i] = strconv.Itoa(courierAdvance)
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
			fixturePageWidth, fixturePageHeight),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 255 /Widths [" +
			strings.Join(widths, " ") + "] >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(objects)+1)
	out.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&out, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return out.Bytes()
}

// LinesPDF places each line on its own baseline, top to bottom, at a 10
// point size starting near the top left corner
func LinesPDF(lines ...string) []byte {
	runs := make([]PDFText, len(lines))
	for i, l := range lines {
		runs[i] = PDFText{X: 50, Y: float64(fixturePageHeight - 60 - 20*i), Size: 10, Text: l}
	}
	return TextPDF(runs...)
}

// SampleCNHLines is the text of a digitally issued CNH in reading order
var SampleCNHLines = []string{
	"NOME",
	"JOAO DA SILVA SANTOS",
	"DOC. IDENTIDADE / ORG. EMISSOR / UF",
	"1234567 SSP SP",
	"CPF",
	"123.456.789-09",
	"DATA NASCIMENTO",
	"15/03/1990",
	"FILIAÇÃO",
	"MARIA DA SILVA",
	"JOSE DOS SANTOS",
	"N° REGISTRO",
	"01234567890",
	"VALIDADE",
	"20/03/2030",
	"CAT. HAB.",
	"AB",
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
