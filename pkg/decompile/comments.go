package decompile

import "strings"

// Comments are the decompiler notes attached to a method
type Comments []string

// String renders the notes as a block comment, or nothing when empty
func (c Comments) String() string {
	if len(c) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("/*\n")
	for _, s := range c {
		sb.WriteString(" * ")
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	sb.WriteString(" */\n")
	return sb.String()
}
