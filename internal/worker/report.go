package worker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// report builds the markdown body of an artifact. Key figures are written as
// "- **Name:** value" lines so downstream workers can read them back.
type report struct {
	b strings.Builder
}

func newReport(title string) *report {
	r := &report{}
	fmt.Fprintf(&r.b, "# %s\n", title)
	return r
}

func (r *report) section(name string) {
	fmt.Fprintf(&r.b, "\n## %s\n\n", name)
}

func (r *report) field(name, format string, args ...any) {
	fmt.Fprintf(&r.b, "- **%s:** %s\n", name, fmt.Sprintf(format, args...))
}

func (r *report) line(format string, args ...any) {
	fmt.Fprintf(&r.b, format+"\n", args...)
}

func (r *report) String() string { return r.b.String() }

var fieldLine = regexp.MustCompile(`(?m)^- \*\*([^*\n]+):\*\* (.+)$`)

// Field returns the value of a "- **name:** value" line in body.
func Field(body, name string) (string, bool) {
	for _, m := range fieldLine.FindAllStringSubmatch(body, -1) {
		if m[1] == name {
			return strings.TrimSpace(m[2]), true
		}
	}
	return "", false
}

// NumberField parses the leading number of a field, ignoring a "$" prefix,
// thousands separators and any trailing unit.
func NumberField(body, name string) (float64, bool) {
	v, ok := Field(body, name)
	if !ok {
		return 0, false
	}
	v = strings.TrimPrefix(v, "$")
	v = strings.ReplaceAll(v, ",", "")
	if i := strings.IndexFunc(v, func(c rune) bool {
		return !(c >= '0' && c <= '9' || c == '.' || c == '-' || c == '+')
	}); i >= 0 {
		v = v[:i]
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func money(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	var out []byte
	for i := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, intPart[i])
	}
	res := "$" + string(out) + "." + frac
	if neg {
		res = "-" + res
	}
	return res
}

// writeGaps lists upstream degradation notes.
func writeGaps(r *report, in Input) {
	if len(in.Missing) == 0 {
		return
	}
	r.section("Data Gaps")
	for _, m := range in.Missing {
		r.line("- %s: %s", m.Worker, m.Note)
	}
}
