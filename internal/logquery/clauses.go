package logquery

import (
	"fmt"
	"sort"
	"strings"

	"loghistory/internal/db"
)

// Reserved context keys the engine gives meaning to.
const (
	ContextKeyUserID     = "_user_id"
	ContextKeyMessageKey = "_message_key"
	ContextKeySticky     = "_sticky"
)

// clauseBuilder turns a normalized spec into an ordered list of predicate
// nodes. The permission scope always comes first; every exclusion is the
// structural negation of its inclusion twin, AND-ed independently, so an
// exclusion wins whenever both name the same value.
type clauseBuilder struct {
	dialect string
	tables  db.TableNames
	catalog MessageCatalog
}

func (b *clauseBuilder) build(spec *QuerySpec, readableSlugs []string) []pred {
	preds := []pred{in{col: "logger", vals: anySlice(readableSlugs)}}

	if spec.DateFrom != nil {
		preds = append(preds, cmp{col: "date", op: ">=", val: *spec.DateFrom})
	}
	if spec.DateTo != nil {
		preds = append(preds, cmp{col: "date", op: "<=", val: *spec.DateTo})
	}

	if len(spec.Levels) > 0 {
		preds = append(preds, in{col: "level", vals: anySlice(spec.Levels)})
	}
	if len(spec.ExcludeLevels) > 0 {
		preds = append(preds, not{in{col: "level", vals: anySlice(spec.ExcludeLevels)}})
	}

	if len(spec.Loggers) > 0 {
		preds = append(preds, in{col: "logger", vals: anySlice(spec.Loggers)})
	}
	if len(spec.ExcludeLoggers) > 0 {
		preds = append(preds, not{in{col: "logger", vals: anySlice(spec.ExcludeLoggers)}})
	}

	if len(spec.Messages) > 0 {
		preds = append(preds, b.messagesClause(spec.Messages))
	}
	if len(spec.ExcludeMessages) > 0 {
		preds = append(preds, not{b.messagesClause(spec.ExcludeMessages)})
	}

	if len(spec.Users) > 0 {
		preds = append(preds, b.contextKeyIn(ContextKeyUserID, spec.Users))
	}
	if len(spec.ExcludeUsers) > 0 {
		preds = append(preds, not{b.contextKeyIn(ContextKeyUserID, spec.ExcludeUsers)})
	}

	if len(spec.Initiators) > 0 {
		preds = append(preds, in{col: "initiator", vals: anySlice(spec.Initiators)})
	}
	if len(spec.ExcludeInitiators) > 0 {
		preds = append(preds, not{in{col: "initiator", vals: anySlice(spec.ExcludeInitiators)}})
	}

	for _, k := range sortedKeys(spec.Context) {
		preds = append(preds, b.contextPair(k, spec.Context[k]))
	}
	for _, k := range sortedKeys(spec.ExcludeContext) {
		preds = append(preds, not{b.contextPair(k, spec.ExcludeContext[k])})
	}

	if spec.OnlySticky {
		preds = append(preds, rawPred{
			sql:  fmt.Sprintf("id IN (SELECT history_id FROM %s WHERE key = ?)", b.tables.Contexts),
			args: []any{ContextKeySticky},
		})
	}

	if spec.Search != "" {
		if p := b.searchClause(spec.Search); p != nil {
			preds = append(preds, p)
		}
	}
	if spec.ExcludeSearch != "" {
		if p := b.searchClause(spec.ExcludeSearch); p != nil {
			preds = append(preds, not{p})
		}
	}

	return preds
}

// messagesClause matches (logger, _message_key) pairs: any of the named
// loggers with any of its listed message keys.
func (b *clauseBuilder) messagesClause(messages map[string][]string) pred {
	clause := or{}
	for _, slug := range sortedListKeys(messages) {
		keys := messages[slug]
		clause = append(clause, and{
			cmp{col: "logger", op: "=", val: slug},
			b.contextKeyIn(ContextKeyMessageKey, keys),
		})
	}
	return clause
}

// contextKeyIn matches events carrying one of vals under a fixed context key.
func (b *clauseBuilder) contextKeyIn(key string, vals []string) pred {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
	args := append([]any{key}, anySlice(vals)...)
	return rawPred{
		sql: fmt.Sprintf("id IN (SELECT history_id FROM %s WHERE key = ? AND value IN (%s))",
			b.tables.Contexts, placeholders),
		args: args,
	}
}

func (b *clauseBuilder) contextPair(key, value string) pred {
	return rawPred{
		sql:  fmt.Sprintf("id IN (SELECT history_id FROM %s WHERE key = ? AND value = ?)", b.tables.Contexts),
		args: []any{key, value},
	}
}

// searchClause implements the AND-of-tokens search: every token must match
// within one searchable field family. Families are OR-ed: all tokens in
// the message, or all in the logger name, or all in the level name, or
// each token found in some context value (rows may differ per token), or
// the event's (logger, message key) pair corresponds to a translated
// template containing all tokens.
func (b *clauseBuilder) searchClause(phrase string) pred {
	tokens := searchTokens(phrase)
	if len(tokens) == 0 {
		return nil
	}

	var msgPreds, loggerPreds, levelPreds, ctxPreds and
	for _, tok := range tokens {
		pattern := likeContains(tok)
		msgPreds = append(msgPreds, like{col: "message", pattern: pattern})
		loggerPreds = append(loggerPreds, like{col: "logger", pattern: pattern})
		levelPreds = append(levelPreds, like{col: "level", pattern: pattern})
		ctxPreds = append(ctxPreds, b.contextValueLike(pattern))
	}

	clause := or{msgPreds, loggerPreds, levelPreds, ctxPreds}
	clause = append(clause, b.translatedMatches(tokens)...)
	return clause
}

// contextValueLike matches events with any context value containing the
// pattern. The operator is resolved here because the fragment bypasses the
// Like node.
func (b *clauseBuilder) contextValueLike(pattern string) pred {
	op := `LIKE ? ESCAPE '\'`
	if b.dialect == "postgres" {
		op = "ILIKE ?"
	}
	return rawPred{
		sql:  fmt.Sprintf("id IN (SELECT history_id FROM %s WHERE value %s)", b.tables.Contexts, op),
		args: []any{pattern},
	}
}

// translatedMatches scans every registered logger's message catalog for
// translated templates containing all tokens, and emits one
// (logger, _message_key) predicate per hit. Events store the untranslated
// template, so a search against the user-facing text only works through
// this detour.
func (b *clauseBuilder) translatedMatches(tokens []string) []pred {
	if b.catalog == nil {
		return nil
	}

	var out []pred
	slugs := append([]string(nil), b.catalog.Slugs()...)
	sort.Strings(slugs)

	for _, slug := range slugs {
		messages := b.catalog.TranslatedMessages(slug)
		for _, key := range sortedKeys(messages) {
			translated := strings.ToLower(messages[key])
			all := true
			for _, tok := range tokens {
				if !strings.Contains(translated, strings.ToLower(tok)) {
					all = false
					break
				}
			}
			if !all {
				continue
			}
			out = append(out, and{
				cmp{col: "logger", op: "=", val: slug},
				b.contextPair(ContextKeyMessageKey, key),
			})
		}
	}
	return out
}

// searchTokens splits a phrase on whitespace and commas.
func searchTokens(phrase string) []string {
	return strings.FieldsFunc(phrase, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ','
	})
}

func anySlice(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedListKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
