// Package shell tokenizes shell command strings for the safety gates.
// The tokenizer understands POSIX quoting and backslash escapes but never
// expands variables, globs, or command substitutions: gates must see the
// command exactly as written.
package shell

import "strings"

// Token is one shell word or operator, with quoting already resolved.
type Token struct {
	Value    string
	Operator bool // ";", "|", "||", "&", "&&", ">", ">>", "<"
	Quoted   bool // any part of the word was quoted
}

// tokenizer states
const (
	stateUnquoted = iota
	stateSingle
	stateDouble
)

// operatorRunes start an operator token and terminate the current word.
var operatorRunes = map[byte]bool{
	';': true,
	'|': true,
	'&': true,
	'>': true,
	'<': true,
}

// Tokenize splits a command string into tokens. Ordering is preserved and
// adjacent tokens are never merged. Unterminated quotes consume to the end
// of input, matching how a shell would prompt for more; the partial word
// is still returned so gates can reason about it.
func Tokenize(command string) []Token {
	var tokens []Token
	var word strings.Builder
	state := stateUnquoted
	quoted := false
	inWord := false

	flush := func() {
		if inWord {
			tokens = append(tokens, Token{Value: word.String(), Quoted: quoted})
			word.Reset()
			quoted = false
			inWord = false
		}
	}

	for i := 0; i < len(command); i++ {
		c := command[i]
		switch state {
		case stateSingle:
			if c == '\'' {
				state = stateUnquoted
			} else {
				word.WriteByte(c)
			}
		case stateDouble:
			switch c {
			case '"':
				state = stateUnquoted
			case '\\':
				// Inside double quotes backslash only escapes ", \, $, `.
				if i+1 < len(command) {
					next := command[i+1]
					if next == '"' || next == '\\' || next == '$' || next == '`' {
						word.WriteByte(next)
						i++
						continue
					}
				}
				word.WriteByte(c)
			default:
				word.WriteByte(c)
			}
		default: // stateUnquoted
			switch {
			case c == '\'':
				state = stateSingle
				quoted = true
				inWord = true
			case c == '"':
				state = stateDouble
				quoted = true
				inWord = true
			case c == '\\':
				if i+1 < len(command) {
					word.WriteByte(command[i+1])
					i++
				}
				inWord = true
			case c == ' ' || c == '\t' || c == '\n':
				flush()
			case operatorRunes[c]:
				flush()
				op := string(c)
				// Two-character operators: &&, ||, >>.
				if i+1 < len(command) && command[i+1] == c && (c == '&' || c == '|' || c == '>') {
					op += string(c)
					i++
				}
				tokens = append(tokens, Token{Value: op, Operator: true})
			default:
				word.WriteByte(c)
				inWord = true
			}
		}
	}
	flush()
	return tokens
}

// StripEnvPrefix removes leading NAME=value assignments from a token
// stream and returns the value assigned to the given name, if present.
// Shells accept any number of assignments before the command word.
func StripEnvPrefix(tokens []Token, name string) (rest []Token, value string, found bool) {
	prefix := name + "="
	i := 0
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.Operator || tok.Quoted || !isAssignment(tok.Value) {
			break
		}
		if strings.HasPrefix(tok.Value, prefix) {
			value = strings.TrimPrefix(tok.Value, prefix)
			found = true
		}
	}
	return tokens[i:], value, found
}

// isAssignment reports whether the word looks like NAME=value with a
// POSIX-valid variable name.
func isAssignment(word string) bool {
	eq := strings.IndexByte(word, '=')
	if eq <= 0 {
		return false
	}
	for i := 0; i < eq; i++ {
		c := word[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// SplitCommands splits a token stream into simple commands at operator
// boundaries. Operators themselves are dropped.
func SplitCommands(tokens []Token) [][]Token {
	var commands [][]Token
	start := 0
	for i, tok := range tokens {
		if tok.Operator {
			if i > start {
				commands = append(commands, tokens[start:i])
			}
			start = i + 1
		}
	}
	if start < len(tokens) {
		commands = append(commands, tokens[start:])
	}
	return commands
}
