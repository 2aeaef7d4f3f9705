package content

import "github.com/local/redactor/internal/geom"

// Placements returns, for every XObject painted with Do, the CTM in effect
// at each paint. For an image the CTM maps its unit square to user space.
func Placements(data []byte) (map[string][]geom.Matrix, error) {
	ops, err := Lex(data)
	if err != nil {
		return nil, err
	}
	out := map[string][]geom.Matrix{}
	in := NewInterpreter()
	for i := range ops {
		in.step(ops, i, nil)
		if ops[i].Name != "Do" {
			continue
		}
		for _, o := range ops[i].Operands {
			if o.Kind == KindName {
				out[o.Name] = append(out[o.Name], in.CTM())
				break
			}
		}
	}
	return out, nil
}
