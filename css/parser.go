package css

import (
	"bytes"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS stylesheets into structured rules.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet. The optional source parameter
// identifies what's being parsed (for debug logging). Parsing never fails:
// malformed constructs are skipped and the rest of the sheet is kept.
func (p *Parser) Parse(data []byte, source ...string) *Stylesheet {
	sheet := &Stylesheet{}

	if len(source) > 0 && source[0] != "" {
		p.log.Debug("Parsing CSS", zap.String("source", source[0]), zap.Int("bytes", len(data)))
	}

	input := parse.NewInput(bytes.NewReader(data))
	parser := css.NewParser(input, false)

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err != nil && err.Error() != "EOF" {
				p.log.Debug("CSS parse error", zap.Error(err))
			}
			return sheet

		case css.BeginAtRuleGrammar:
			// @media and friends never apply off-screen, skip the block
			atRule := string(data)
			sheet.Warnings = append(sheet.Warnings, "skipped at-rule block: "+atRule)
			p.log.Debug("Skipping @-rule block", zap.String("rule", atRule))
			p.skipAtRuleBlock(parser)

		case css.AtRuleGrammar:
			p.log.Debug("Skipping @-rule", zap.String("rule", string(data)))

		case css.BeginRulesetGrammar, css.QualifiedRuleGrammar:
			selectors := p.parseSelectors(data, parser.Values())
			if gt != css.BeginRulesetGrammar {
				continue
			}
			decls := p.parseDeclarations(parser)
			for _, sel := range selectors {
				rule := Rule{Selector: sel}
				rule.Declarations = append(rule.Declarations, decls...)
				sheet.Rules = append(sheet.Rules, rule)
			}
		}
	}
}

// parseSelectors extracts selector strings from token data, splitting
// grouped selectors at commas.
func (p *Parser) parseSelectors(data []byte, values []css.Token) []string {
	var sb strings.Builder
	sb.Write(data)
	for _, v := range values {
		sb.Write(v.Data)
	}

	var selectors []string
	for s := range strings.SplitSeq(sb.String(), ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			selectors = append(selectors, s)
		}
	}
	return selectors
}

// parseDeclarations consumes property declarations until the ruleset ends.
// Custom properties are kept as ordinary declarations with their "--" name.
func (p *Parser) parseDeclarations(parser *css.Parser) []Declaration {
	var decls []Declaration

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar, css.EndRulesetGrammar:
			return decls

		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			value, important := buildValue(parser.Values())
			if value == "" {
				continue
			}
			decls = append(decls, Declaration{
				Property:  strings.ToLower(string(data)),
				Value:     value,
				Important: important,
			})
		}
	}
}

// buildValue joins value tokens into a single string, collapsing whitespace
// and splitting off a trailing !important flag.
func buildValue(tokens []css.Token) (string, bool) {
	important := false

	// trailing "!" delim + "important" ident, possibly with whitespace
	end := len(tokens)
	for end > 0 && tokens[end-1].TokenType == css.WhitespaceToken {
		end--
	}
	if end >= 2 &&
		tokens[end-1].TokenType == css.IdentToken &&
		strings.EqualFold(string(tokens[end-1].Data), "important") {
		i := end - 2
		for i > 0 && tokens[i].TokenType == css.WhitespaceToken {
			i--
		}
		if tokens[i].TokenType == css.DelimToken && string(tokens[i].Data) == "!" {
			important = true
			end = i
		}
	}

	var sb strings.Builder
	for _, t := range tokens[:end] {
		if t.TokenType == css.WhitespaceToken {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			continue
		}
		sb.Write(t.Data)
	}
	return strings.TrimSpace(sb.String()), important
}

// skipAtRuleBlock skips tokens until the matching end of an @-rule block.
func (p *Parser) skipAtRuleBlock(parser *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}
