package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EncodeOBJ renders m as OBJ text: one "v x y z" line per vertex followed by
// one "f a b c" line per triangle with 1-based indices. Lines are joined
// with "\n" and there is no trailing newline.
func EncodeOBJ(m *Mesh) string {
	var sb strings.Builder
	// strings.Builder never fails.
	_ = WriteOBJ(&sb, m)
	return sb.String()
}

// WriteOBJ streams the EncodeOBJ form of m to w.
func WriteOBJ(w io.Writer, m *Mesh) error {
	bw := bufio.NewWriter(w)
	first := true
	line := func() {
		if !first {
			bw.WriteByte('\n')
		}
		first = false
	}

	buf := make([]byte, 0, 64)
	for i := 0; i+2 < len(m.Vertices); i += 3 {
		line()
		buf = append(buf[:0], 'v')
		for k := 0; k < 3; k++ {
			v := m.Vertices[i+k]
			if v == 0 {
				// -0 prints as 0.
				v = 0
			}
			buf = append(buf, ' ')
			buf = strconv.AppendFloat(buf, float64(v), 'f', -1, 32)
		}
		bw.Write(buf)
	}

	for i := 0; i+2 < len(m.Indices); i += 3 {
		line()
		buf = append(buf[:0], 'f')
		for k := 0; k < 3; k++ {
			buf = append(buf, ' ')
			buf = strconv.AppendUint(buf, uint64(m.Indices[i+k])+1, 10)
		}
		bw.Write(buf)
	}

	return bw.Flush()
}

// DecodeOBJ reads the positions and faces of an OBJ document. Face indices
// are converted from 1-based to 0-based; negative indices count back from
// the last vertex read so far. Polygons with more than three corners are
// split into a fan around their first corner. Texture coordinates, normals,
// groups and material statements are skipped.
func DecodeOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	face := make([]uint32, 0, 8)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("3 vertex coordinates are required, only %d found", len(fields)-1)}
			}
			for _, s := range fields[1:4] {
				f, err := strconv.ParseFloat(s, 32)
				if err != nil {
					return nil, &SyntaxError{Line: lineNo, Msg: fmt.Sprintf("bad coordinate %q", s), Err: err}
				}
				m.Vertices = append(m.Vertices, float32(f))
			}

		case "f":
			face = face[:0]
			for _, tok := range fields[1:] {
				idx, err := faceIndex(tok, m.VertexCount())
				if err != nil {
					return nil, &SyntaxError{Line: lineNo, Msg: err.Error()}
				}
				face = append(face, idx)
			}
			if len(face) < 3 {
				return nil, &SyntaxError{Line: lineNo, Msg: "at least 3 vertex indices are required"}
			}
			for i := 2; i < len(face); i++ {
				m.Indices = append(m.Indices, face[0], face[i-1], face[i])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// faceIndex resolves the position part of a face token ("7", "7/2",
// "7//3", "7/2/3") against the number of vertices read so far.
func faceIndex(tok string, seen int) (uint32, error) {
	pos, _, _ := strings.Cut(tok, "/")
	if pos == "" {
		return 0, fmt.Errorf("position index is required in %q", tok)
	}
	n, err := strconv.ParseInt(pos, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q", tok)
	}
	switch {
	case n > 0:
		return uint32(n - 1), nil
	case n < 0:
		abs := int64(seen) + n
		if abs < 0 {
			return 0, fmt.Errorf("relative index %d before first vertex", n)
		}
		return uint32(abs), nil
	default:
		return 0, fmt.Errorf("face index 0 is not valid")
	}
}

// SyntaxError occurs when an OBJ line cannot be read.
type SyntaxError struct {
	Line int
	Msg  string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("obj line %d: %s", e.Line, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}
