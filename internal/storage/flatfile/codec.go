package flatfile

import (
	"strings"

	"github.com/aanand-mishra/pace-registry/internal/types"
)

const (
	fieldSep  = '|'
	escape    = '\\'
	numFields = 4
)

var fieldEscaper = strings.NewReplacer(
	`\`, `\\`,
	`|`, `\|`,
	"\n", `\n`,
	"\r", `\r`,
)

// encodeLine renders s as usn|name|email|skills followed by a newline.
// Separators and line breaks inside a field are backslash-escaped; plain
// values are written unchanged.
func encodeLine(s types.Student) string {
	var b strings.Builder
	for i, f := range []string{s.USN, s.Name, s.Email, s.Skills} {
		if i > 0 {
			b.WriteByte(fieldSep)
		}
		b.WriteString(fieldEscaper.Replace(f))
	}
	b.WriteByte('\n')
	return b.String()
}

// decodeLine splits line on unescaped separators. ok is false when the
// line does not hold exactly four fields.
//
// Only \\, \|, \n and \r are unescaped; any other backslash pair is
// kept verbatim, so a plain value such as C\C++ reads back unchanged.
// A legacy value that literally contained one of those four pairs does
// decode differently.
func decodeLine(line string) (types.Student, bool) {
	line = strings.TrimSuffix(line, "\r")

	fields := make([]string, 0, numFields)
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == escape && i+1 < len(line):
			i++
			switch line[i] {
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			case escape, fieldSep:
				cur.WriteByte(line[i])
			default:
				// Not an escape this log writes: keep both bytes.
				cur.WriteByte(escape)
				cur.WriteByte(line[i])
			}
		case c == fieldSep:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())

	if len(fields) != numFields {
		return types.Student{}, false
	}
	return types.Student{
		USN:    fields[0],
		Name:   fields[1],
		Email:  fields[2],
		Skills: fields[3],
	}, true
}
