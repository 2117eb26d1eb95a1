package querysql

import (
	"fmt"
	"strings"
)

// frag is a SQL fragment with the parameters for its placeholders, in
// placeholder order.
type frag struct {
	sql  string
	args []any
}

// fragf substitutes each %s in format with the next part. Parameters are
// concatenated in the same order, so placeholder order always matches
// parameter order.
func fragf(format string, parts ...frag) frag {
	texts := make([]any, len(parts))
	var args []any
	for i, p := range parts {
		texts[i] = p.sql
		args = append(args, p.args...)
	}
	return frag{sql: fmt.Sprintf(format, texts...), args: args}
}

// param is a single placeholder.
func param(v any) frag {
	return frag{sql: "?", args: []any{v}}
}

func concat(parts ...frag) frag {
	var b strings.Builder
	var args []any
	for _, p := range parts {
		b.WriteString(p.sql)
		args = append(args, p.args...)
	}
	return frag{sql: b.String(), args: args}
}

func joinFrags(parts []frag, sep string) frag {
	joined := make([]frag, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			joined = append(joined, frag{sql: sep})
		}
		joined = append(joined, p)
	}
	return concat(joined...)
}
