package presence

// FormatTypers renders the client-facing typing indicator. A display
// policy, not tracker state: 0 typers yields no indicator, one and two
// are named, three or more collapse to a generic line.
func FormatTypers(typers []Typer) string {
	switch len(typers) {
	case 0:
		return ""
	case 1:
		return typers[0].DisplayName + " is typing..."
	case 2:
		return typers[0].DisplayName + " and " + typers[1].DisplayName + " are typing..."
	default:
		return "Several people are typing..."
	}
}
