package ir

import (
	"fmt"
	"io"
)

// Print writes a textual rendition of the module, one function at a time.
// This mirrors the teacher's IrProgram.Print: a flat walk, no attempt at
// round-trip-perfect formatting.
func (m *Module) Print(w io.Writer) {
	for _, f := range m.Functions {
		f.Print(w)
		fmt.Fprintln(w)
	}
}

// Print writes f as a sequence of labeled blocks, each block's
// instructions indented underneath it.
func (f *Function) Print(w io.Writer) {
	argNames := make([]string, len(f.Args))
	for i, a := range f.Args {
		argNames[i] = fmt.Sprintf("%s %s", a.typ, a.String())
	}
	fmt.Fprintf(w, "func %s(", f.Name)
	for i, n := range argNames {
		if i > 0 {
			fmt.Fprint(w, ", ")
		}
		fmt.Fprint(w, n)
	}
	fmt.Fprintln(w, ") {")
	for _, b := range f.Blocks {
		fmt.Fprintf(w, "%s:\n", b.Name)
		for _, i := range b.Instrs {
			fmt.Fprintf(w, "  %s\n", i.Text())
		}
	}
	fmt.Fprintln(w, "}")
}
