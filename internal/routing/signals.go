package routing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	absentDeadlines = map[string]struct{}{
		"": {}, "null": {}, "none": {}, "n/a": {}, "na": {}, "tbd": {}, "tba": {},
		"unspecified": {}, "not specified": {}, "unknown": {}, "no deadline": {},
	}

	vagueDeadlines = compileTerms([]string{
		"soon", "asap", "as soon as possible", "sometime", "some time", "eventually",
		"sooner or later", "sooner rather than later", "later on", "at a later date",
		"whenever", "when possible", "at some point", "in the future", "next week", "next month",
		"this quarter", "end of quarter", "end of the quarter", "ongoing",
	})

	unspecifiedAssignees = map[string]struct{}{
		"": {}, "unspecified": {}, "not specified": {}, "unknown": {}, "unassigned": {},
		"none": {}, "null": {}, "n/a": {}, "na": {}, "tbd": {},
		"someone": {}, "somebody": {}, "anyone": {}, "anybody": {},
	}

	groupAssignees = compileTerms([]string{
		"team", "teams", "everyone", "everybody", "all", "group", "department", "dept",
		"staff", "folks", "squad", "crew", "committee", "members", "you all", "y'all",
	})

	dateToken     = regexp.MustCompile(`\d`)
	parenthetical = regexp.MustCompile(`[(\[][^)\]]*[)\]]?`)
	qualifier     = regexp.MustCompile(`\s+(?:from|of|on|in|at|with)\s+|\s*[,;/]\s*`)
)

// DefaultVagueTerms returns the hedging words that mark a description as vague.
func DefaultVagueTerms() []string {
	return []string{
		"maybe", "might", "possibly", "consider", "think about",
		"perhaps", "probably", "if possible", "not sure", "ideally",
	}
}

// ClassifyDeadline reports whether the deadline text is concrete, vague, or absent.
// No date parsing is attempted; any digit marks the deadline as concrete.
func ClassifyDeadline(deadline string) DeadlineState {
	text := normalizeText(deadline)
	if _, ok := absentDeadlines[text]; ok {
		return DeadlineAbsent
	}
	if dateToken.MatchString(text) {
		return DeadlineConcrete
	}
	if vagueDeadlines.MatchString(text) {
		return DeadlineVague
	}
	return DeadlineConcrete
}

// ClassifyAssignee reports whether the assignee names a person, a group, or nobody.
func ClassifyAssignee(assignee string) AssigneeState {
	text := normalizeText(assignee)
	if _, ok := unspecifiedAssignees[text]; ok {
		return AssigneeUnspecified
	}
	head := assigneeHead(text)
	if _, ok := unspecifiedAssignees[head]; ok {
		return AssigneeUnspecified
	}
	if groupAssignees.MatchString(head) {
		return AssigneeGroup
	}
	return AssigneeNamed
}

// assigneeHead drops parentheticals and trailing qualifiers such as
// "from the platform team", leaving the phrase that names the owner.
func assigneeHead(text string) string {
	head := strings.TrimSpace(parenthetical.ReplaceAllString(text, " "))
	if loc := qualifier.FindStringIndex(head); loc != nil {
		head = head[:loc[0]]
	}
	head = strings.Join(strings.Fields(head), " ")
	if head == "" {
		return text
	}
	return head
}

// VagueDetector flags descriptions that contain hedging language.
type VagueDetector struct {
	pattern *regexp.Regexp
}

// NewVagueDetector compiles a whole-word, case-insensitive matcher over terms.
func NewVagueDetector(terms []string) *VagueDetector {
	terms = normalizeTerms(terms)
	if len(terms) == 0 {
		return &VagueDetector{}
	}
	return &VagueDetector{pattern: compileTerms(terms)}
}

// Detect reports whether text contains any configured term.
func (d *VagueDetector) Detect(text string) bool {
	if d == nil || d.pattern == nil {
		return false
	}
	return d.pattern.MatchString(text)
}

// Matches returns the distinct terms found in text, sorted.
func (d *VagueDetector) Matches(text string) []string {
	if d == nil || d.pattern == nil {
		return nil
	}
	found := d.pattern.FindAllString(text, -1)
	for i := range found {
		found[i] = normalizeText(found[i])
	}
	return dedupe(found)
}

// LoadVagueTerms reads a JSON array of hedging terms.
func LoadVagueTerms(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read vague terms: %w", err)
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal vague terms: %w", err)
	}
	terms := normalizeTerms(raw)
	if len(terms) == 0 {
		return nil, fmt.Errorf("vague terms file %s is empty", path)
	}
	return terms, nil
}

func compileTerms(terms []string) *regexp.Regexp {
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		words := strings.Fields(term)
		for i := range words {
			words[i] = regexp.QuoteMeta(words[i])
		}
		if len(words) > 0 {
			parts = append(parts, strings.Join(words, `\s+`))
		}
	}
	// Longest alternatives first so multi-word phrases win over their prefixes.
	sort.SliceStable(parts, func(i, j int) bool { return len(parts[i]) > len(parts[j]) })
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(parts, "|") + `)\b`)
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		if term = normalizeText(term); term != "" {
			out = append(out, term)
		}
	}
	return dedupe(out)
}

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".,;:!?\"'()[]")
	return strings.Join(strings.Fields(s), " ")
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	sort.Strings(in)
	out := make([]string, 0, len(in))
	var prev string
	for i, item := range in {
		if i > 0 && item == prev {
			continue
		}
		out = append(out, item)
		prev = item
	}
	return out
}
