package css

// Declaration is a single property assignment inside a rule. Custom
// properties keep their leading "--" in Property.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// Rule pairs one selector with its declarations. Grouped selectors are
// split at parse time, one Rule per selector.
type Rule struct {
	Selector     string
	Declarations []Declaration
}

// Stylesheet is a flat, source-ordered list of rules. Warnings collects
// constructs the parser recognized but could not represent.
type Stylesheet struct {
	Rules    []Rule
	Warnings []string
}
