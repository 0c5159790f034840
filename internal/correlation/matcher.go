package correlation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Matcher decides whether an inbound envelope satisfies a waiter.
//
// Matchers are a closed set of small variants (MatchAny, FieldEquals,
// CorrelationID, All) so the dispatcher scan stays bounded and each
// registered waiter can be described in logs.
type Matcher interface {
	Match(env Envelope) bool
	String() string
}

// MatchAny matches every envelope of the registered kind.
func MatchAny() Matcher {
	return anyMatcher{}
}

// FieldEquals matches envelopes whose payload field at the dot-separated
// path equals want. Numbers compare by value, so 76 matches 76.0.
func FieldEquals(path string, want any) Matcher {
	m := fieldMatcher{path: strings.Split(path, ".")}
	m.want, m.valid = normalizeJSON(want)
	return m
}

// CorrelationID matches envelopes carrying the given request id.
func CorrelationID(id string) Matcher {
	return idMatcher{id: id}
}

// All matches when every given matcher matches. All() matches everything.
func All(matchers ...Matcher) Matcher {
	return allMatcher{matchers: matchers}
}

type anyMatcher struct{}

func (anyMatcher) Match(Envelope) bool { return true }
func (anyMatcher) String() string { return "any" }

type idMatcher struct {
	id string
}

func (m idMatcher) Match(env Envelope) bool { return env.CorrelationID == m.id }
func (m idMatcher) String() string { return "request_id=" + m.id }

type fieldMatcher struct {
	path  []string
	want  any
	valid bool
}

func (m fieldMatcher) Match(env Envelope) bool {
	if !m.valid {
		return false
	}
	got, ok := env.Field(m.path...)
	if !ok {
		return false
	}
	return jsonEqual(got, m.want)
}

func (m fieldMatcher) String() string {
	return fmt.Sprintf("%s=%v", strings.Join(m.path, "."), m.want)
}

type allMatcher struct {
	matchers []Matcher
}

func (m allMatcher) Match(env Envelope) bool {
	for _, sub := range m.matchers {
		if !sub.Match(env) {
			return false
		}
	}
	return true
}

func (m allMatcher) String() string {
	parts := make([]string, len(m.matchers))
	for i, sub := range m.matchers {
		parts[i] = sub.String()
	}
	return "all(" + strings.Join(parts, ",") + ")"
}

// normalizeJSON round-trips v through JSON so it compares like a decoded payload.
func normalizeJSON(v any) (any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	return out, true
}

func jsonEqual(a, b any) bool {
	an, aNum := a.(json.Number)
	bn, bNum := b.(json.Number)
	if aNum && bNum {
		if an == bn {
			return true
		}
		af, errA := strconv.ParseFloat(an.String(), 64)
		bf, errB := strconv.ParseFloat(bn.String(), 64)
		return errA == nil && errB == nil && af == bf
	}
	return reflect.DeepEqual(a, b)
}
