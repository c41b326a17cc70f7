package pdf

import (
	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
)

// pdfRenderer walks a goldmark AST and writes it to fpdf
type pdfRenderer struct {
	pdf       *fpdf.Fpdf
	source    []byte
	font      string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (r *pdfRenderer) render(node ast.Node) error {
	if err := ast.Walk(node, r.walk); err != nil {
		return err
	}
	return r.pdf.Error()
}

func (r *pdfRenderer) updateFont() {
	style := ""
	if r.bold {
		style += "B"
	}
	if r.italic {
		style += "I"
	}
	r.pdf.SetFont(r.font, style, r.size)
}

func (r *pdfRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n.Kind() {
	case ast.KindHeading:
		r.heading(n.(*ast.Heading), entering)
	case ast.KindParagraph:
		if !entering {
			r.pdf.Ln(6)
		}
	case ast.KindText:
		if entering {
			t := n.(*ast.Text)
			r.pdf.Write(5, string(t.Segment.Value(r.source)))
			if t.SoftLineBreak() {
				r.pdf.Write(5, " ")
			}
		}
	case ast.KindEmphasis:
		if n.(*ast.Emphasis).Level == 2 {
			r.bold = entering
		} else {
			r.italic = entering
		}
		r.updateFont()
	case ast.KindList:
		if entering {
			r.listLevel++
		} else {
			r.listLevel--
			if r.listLevel == 0 {
				r.pdf.Ln(7)
			}
		}
	case ast.KindListItem:
		if entering {
			r.pdf.Ln(5)
			r.pdf.SetX(15 + float64(r.listLevel)*5)
			r.pdf.Write(5, "- ")
		}
	case ast.KindThematicBreak:
		if entering {
			r.pdf.Ln(2)
			r.pdf.Line(15, r.pdf.GetY(), 195, r.pdf.GetY())
			r.pdf.Ln(2)
		}
	}
	return ast.WalkContinue, nil
}

func (r *pdfRenderer) heading(n *ast.Heading, entering bool) {
	if !entering {
		r.pdf.Ln(8)
		r.updateFont()
		return
	}

	size := 11.0
	switch n.Level {
	case 1:
		size = 18
	case 2:
		size = 13
	}
	r.pdf.Ln(3)
	r.pdf.SetFont(r.font, "B", size)
}
