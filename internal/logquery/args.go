package logquery

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Normalizer turns the loosely-typed filter map a caller supplies into a
// strict QuerySpec. It is deliberately permissive about scalar shapes
// (numbers may arrive as strings, lists as CSV strings or slices) and
// strict about values: out-of-range pagination, malformed dates and
// unknown initiators are validation errors naming the field.
type Normalizer struct {
	// Location expands bare YYYY-MM-DD date bounds into local day
	// boundaries.
	Location *time.Location

	// DefaultPageSize is used when the request does not set page_size.
	DefaultPageSize int
}

const maxPageSize = 1000

// Normalize validates and converts args. No query runs before this step.
func (n *Normalizer) Normalize(args map[string]any) (*QuerySpec, error) {
	loc := n.Location
	if loc == nil {
		loc = time.Local
	}

	spec := &QuerySpec{
		Type:     TypeOverview,
		Page:     1,
		PageSize: n.DefaultPageSize,
	}
	if spec.PageSize <= 0 {
		spec.PageSize = 30
	}

	if v, ok := args["type"]; ok {
		s, err := asString("type", v)
		if err != nil {
			return nil, err
		}
		switch ResultType(s) {
		case TypeOverview, TypeSingle, TypeOccasions:
			spec.Type = ResultType(s)
		case "":
		default:
			return nil, &ValidationError{Field: "type", Msg: "unknown result type " + strconv.Quote(s)}
		}
	}

	if v, ok := args["paged"]; ok {
		p, err := asInt("paged", v)
		if err != nil {
			return nil, err
		}
		if p < 1 {
			return nil, &ValidationError{Field: "paged", Msg: "must be >= 1"}
		}
		spec.Page = p
	}
	if v, ok := args["posts_per_page"]; ok {
		p, err := asInt("posts_per_page", v)
		if err != nil {
			return nil, err
		}
		if p < 1 || p > maxPageSize {
			return nil, &ValidationError{Field: "posts_per_page", Msg: fmt.Sprintf("must be between 1 and %d", maxPageSize)}
		}
		spec.PageSize = p
	}

	var err error
	if spec.DateFrom, err = parseDateBound("date_from", args["date_from"], loc, false); err != nil {
		return nil, err
	}
	if spec.DateTo, err = parseDateBound("date_to", args["date_to"], loc, true); err != nil {
		return nil, err
	}

	if spec.Search, err = asString("search", args["search"]); err != nil {
		return nil, err
	}
	if spec.ExcludeSearch, err = asString("exclude_search", args["exclude_search"]); err != nil {
		return nil, err
	}

	if spec.Levels, err = asStringList("loglevels", args["loglevels"]); err != nil {
		return nil, err
	}
	if spec.ExcludeLevels, err = asStringList("exclude_loglevels", args["exclude_loglevels"]); err != nil {
		return nil, err
	}
	if spec.Loggers, err = asStringList("loggers", args["loggers"]); err != nil {
		return nil, err
	}
	if spec.ExcludeLoggers, err = asStringList("exclude_loggers", args["exclude_loggers"]); err != nil {
		return nil, err
	}
	if spec.Users, err = asStringList("users", args["users"]); err != nil {
		return nil, err
	}
	if spec.ExcludeUsers, err = asStringList("exclude_users", args["exclude_users"]); err != nil {
		return nil, err
	}

	if spec.Messages, err = parseMessagePairs("messages", args["messages"]); err != nil {
		return nil, err
	}
	if spec.ExcludeMessages, err = parseMessagePairs("exclude_messages", args["exclude_messages"]); err != nil {
		return nil, err
	}

	if spec.Initiators, err = parseInitiators("initiator", args["initiator"]); err != nil {
		return nil, err
	}
	if spec.ExcludeInitiators, err = parseInitiators("exclude_initiator", args["exclude_initiator"]); err != nil {
		return nil, err
	}

	if spec.Context, err = parseContextPairs("context", args["context"]); err != nil {
		return nil, err
	}
	if spec.ExcludeContext, err = parseContextPairs("exclude_context", args["exclude_context"]); err != nil {
		return nil, err
	}

	if spec.OnlySticky, err = asBool("only_sticky", args["only_sticky"]); err != nil {
		return nil, err
	}
	if spec.IncludeSticky, err = asBool("include_sticky", args["include_sticky"]); err != nil {
		return nil, err
	}
	if spec.Ungrouped, err = asBool("ungrouped", args["ungrouped"]); err != nil {
		return nil, err
	}

	if spec.Type == TypeOccasions {
		if spec.LogRowID, err = asUint64("logRowID", args["logRowID"]); err != nil {
			return nil, err
		}
		if spec.OccasionsID, err = asString("occasionsID", args["occasionsID"]); err != nil {
			return nil, err
		}
		if spec.OccasionsCount, err = asInt("occasionsCount", args["occasionsCount"]); err != nil {
			return nil, err
		}
		if v, ok := args["occasionsCountMaxReturn"]; ok {
			if spec.OccasionsCountMaxReturn, err = asInt("occasionsCountMaxReturn", v); err != nil {
				return nil, err
			}
		}
		if spec.LogRowID == 0 {
			return nil, &ValidationError{Field: "logRowID", Msg: "required for occasions queries"}
		}
		if spec.OccasionsID == "" {
			return nil, &ValidationError{Field: "occasionsID", Msg: "required for occasions queries"}
		}
		if spec.OccasionsCount < 1 {
			return nil, &ValidationError{Field: "occasionsCount", Msg: "must be >= 1"}
		}
	}

	return spec, nil
}

// parseDateBound accepts a unix timestamp (number or numeric string) or a
// datetime string. A bare YYYY-MM-DD expands to the start of that day for
// lower bounds and the end of it for upper bounds, in loc.
func parseDateBound(field string, v any, loc *time.Location, endOfDay bool) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}

	switch t := v.(type) {
	case time.Time:
		return &t, nil
	case int:
		ts := time.Unix(int64(t), 0)
		return &ts, nil
	case int64:
		ts := time.Unix(t, 0)
		return &ts, nil
	case float64:
		ts := time.Unix(int64(t), 0)
		return &ts, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			ts := time.Unix(n, 0)
			return &ts, nil
		}
		if d, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
			if endOfDay {
				d = d.Add(24*time.Hour - time.Second)
			}
			return &d, nil
		}
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339} {
			if d, err := time.ParseInLocation(layout, s, loc); err == nil {
				return &d, nil
			}
		}
		return nil, &ValidationError{Field: field, Msg: "unparseable date " + strconv.Quote(s)}
	default:
		return nil, &ValidationError{Field: field, Msg: "must be a unix timestamp or date string"}
	}
}

// parseMessagePairs groups "LoggerSlug:message_key" entries into a map of
// logger slug to message keys. Entries without a separator are dropped,
// not errored: multi-value CSV fields parse leniently on purpose.
func parseMessagePairs(field string, v any) (map[string][]string, error) {
	entries, err := asStringList(field, v)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	out := make(map[string][]string)
	for _, entry := range entries {
		slug, key, ok := strings.Cut(entry, ":")
		if !ok || slug == "" || key == "" {
			continue
		}
		out[slug] = append(out[slug], key)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// parseInitiators validates against the closed enumeration. Unlike the
// lenient CSV fields, an unknown initiator is an error; this asymmetry
// matches the established accepted-input behavior and is kept on purpose.
func parseInitiators(field string, v any) ([]string, error) {
	vals, err := asStringList(field, v)
	if err != nil {
		return nil, err
	}
	for _, val := range vals {
		if !validInitiator(val) {
			return nil, &ValidationError{Field: field, Msg: "unknown initiator " + strconv.Quote(val)}
		}
	}
	return vals, nil
}

// parseContextPairs accepts either a map of key to value or a list of
// "key=value" entries (entries without a separator are dropped, like the
// other CSV fields).
func parseContextPairs(field string, v any) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}

	switch t := v.(type) {
	case map[string]string:
		if len(t) == 0 {
			return nil, nil
		}
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out, nil
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = fmt.Sprintf("%v", val)
		}
		return out, nil
	default:
		entries, err := asStringList(field, v)
		if err != nil {
			return nil, err
		}
		out := make(map[string]string)
		for _, entry := range entries {
			k, val, ok := strings.Cut(entry, "=")
			if !ok || k == "" {
				continue
			}
			out[k] = val
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	}
}

func asString(field string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case fmt.Stringer:
		return strings.TrimSpace(t.String()), nil
	default:
		return "", &ValidationError{Field: field, Msg: "must be a string"}
	}
}

// asStringList splits CSV strings and flattens slices, trimming entries
// and discarding empty ones.
func asStringList(field string, v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}

	var raw []string
	switch t := v.(type) {
	case string:
		raw = strings.Split(t, ",")
	case []string:
		raw = t
	case []any:
		raw = make([]string, 0, len(t))
		for _, item := range t {
			raw = append(raw, fmt.Sprintf("%v", item))
		}
	case int, int64, float64:
		raw = []string{fmt.Sprintf("%v", t)}
	default:
		return nil, &ValidationError{Field: field, Msg: "must be a string or list"}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func asInt(field string, v any) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, &ValidationError{Field: field, Msg: "must be an integer"}
		}
		return n, nil
	default:
		return 0, &ValidationError{Field: field, Msg: "must be an integer"}
	}
}

func asUint64(field string, v any) (uint64, error) {
	n, err := asInt(field, v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &ValidationError{Field: field, Msg: "must be >= 0"}
	}
	return uint64(n), nil
}

func asBool(field string, v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "0", "false", "no":
			return false, nil
		case "1", "true", "yes":
			return true, nil
		default:
			return false, &ValidationError{Field: field, Msg: "must be a boolean"}
		}
	case int:
		return t != 0, nil
	case float64:
		return t != 0, nil
	default:
		return false, &ValidationError{Field: field, Msg: "must be a boolean"}
	}
}
