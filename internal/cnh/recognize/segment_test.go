package recognize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/recognize"
)

func word(text string, line int, x0, x1 float64, conf float64) recognize.Word {
	return recognize.Word{
		Text:       text,
		Box:        domain.BoundingBox{X0: x0, Y0: float64(line * 30), X1: x1, Y1: float64(line*30 + 20)},
		Confidence: conf,
		Block:      1,
		Paragraph:  1,
		Line:       line,
	}
}

func TestSegment(t *testing.T) {
	words := []recognize.Word{
		word("DATA", 1, 0, 40, 0.9),
		word("NASCIMENTO", 1, 45, 140, 0.8),
		word("15/03/1990", 1, 300, 400, 0.7),
		word("MARIA", 2, 0, 50, 1),
		word(" ", 2, 55, 60, 0),
		word("SILVA", 2, 60, 110, 0.5),
	}

	tokens := recognize.Segment(words, 1.5)
	require.Len(t, tokens, 3)

	assert.Equal(t, "DATA NASCIMENTO", tokens[0].Text)
	assert.InDelta(t, 0.85, *tokens[0].Confidence, 1e-9)
	assert.Equal(t, domain.BoundingBox{X0: 0, Y0: 30, X1: 140, Y1: 50}, *tokens[0].Box)

	assert.Equal(t, "15/03/1990", tokens[1].Text)
	assert.Equal(t, "MARIA SILVA", tokens[2].Text)
	assert.InDelta(t, 0.75, *tokens[2].Confidence, 1e-9)

	for i, tk := range tokens {
		assert.Equal(t, i, tk.Index)
	}
}

func TestSegment_Empty(t *testing.T) {
	assert.Empty(t, recognize.Segment(nil, 0))
	assert.Empty(t, recognize.Segment([]recognize.Word{word("  ", 1, 0, 10, 1)}, 0))
}
