package analysis

import (
	"regexp"
	"strings"

	"github.com/Lowy-zhangtian/-audit-tool/internal/model"
)

var (
	// "1. ...", "2) ...", "### 3: ...", "4、..." at the start of a line
	sectionRe = regexp.MustCompile(`^\s*(?:#{1,6}\s*)?([1-4])(?:[.)](?:\s+|$)|\s*[:：、]\s*)(.*)$`)

	// Section labels echoed back from the instruction block
	labelRe = regexp.MustCompile(`(?i)^(?:overall\s+assessment|assessment|detailed\s+analysis|analysis|` +
		`risk\s+identification|identified\s+risks|risks?|suggested\s+actions|recommended\s+actions|actions|` +
		`recommendations?|总体评估|整体评价|详细分析|风险识别|建议措施|建议)\s*(?:\([^)]*\)|（[^）]*）)?\s*[:：]\s*`)

	bulletRe = regexp.MustCompile(`^\s*(?:[-*•·]|\d+[.)]|[a-zA-Z][.)])\s+`)
)

// ParseResponse reads the four numbered sections of a model answer.
// A missing section leaves its field empty. When the answer has no
// numbered section at all the narrative is marked Unparsed and keeps
// only the raw text.
func ParseResponse(reportID, raw string) model.Narrative {
	n := model.Narrative{
		ReportID:         reportID,
		IdentifiedRisks:  []string{},
		SuggestedActions: []string{},
		RawResponse:      raw,
	}

	sections, found := splitSections(raw)
	if !found {
		n.Assessment = model.AssessmentUnparsed
		return n
	}

	n.Assessment = assessment(sections[0])
	n.AnalysisDetails = strings.TrimSpace(strings.Join(sections[1], "\n"))
	n.IdentifiedRisks = listItems(sections[2])
	n.SuggestedActions = listItems(sections[3])
	return n
}

// splitSections groups lines under their section number. Section numbers
// must increase, so a nested "1." inside section 3 stays content. When the
// answer echoes section labels ("2. Detailed Analysis:"), only labelled lines
// open a section and numbered lists inside a section stay content.
func splitSections(raw string) ([4][]string, bool) {
	var lines []string
	labelled := false
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r ")
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		line = strings.NewReplacer("**", "", "__", "").Replace(line)
		lines = append(lines, line)

		if m := sectionRe.FindStringSubmatch(line); m != nil && labelRe.MatchString(strings.TrimSpace(m[2])) {
			labelled = true
		}
	}

	var sections [4][]string
	current := 0 // 1-based, 0 = before the first section
	found := false

	for _, line := range lines {
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			num := int(m[1][0] - '0')
			head := strings.TrimSpace(m[2])
			if num > current && (!labelled || labelRe.MatchString(head)) {
				current = num
				found = true
				if rest := strings.TrimSpace(labelRe.ReplaceAllString(head, "")); rest != "" {
					sections[num-1] = append(sections[num-1], rest)
				}
				continue
			}
		}

		if current > 0 {
			if text := strings.TrimSpace(line); text != "" {
				sections[current-1] = append(sections[current-1], text)
			}
		}
	}

	return sections, found
}

// assessment takes the first line of the section without trailing punctuation
func assessment(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(lines[0]), ".。 ")
}

// listItems turns a section into items. Bulleted lines become one item
// each; running text is split on commas and semicolons outside parentheses.
func listItems(lines []string) []string {
	items := []string{}
	if len(lines) == 0 {
		return items
	}

	bulleted := false
	for _, line := range lines {
		if bulletRe.MatchString(line) {
			bulleted = true
			break
		}
	}

	var parts []string
	if bulleted {
		for _, line := range lines {
			parts = append(parts, bulletRe.ReplaceAllString(line, ""))
		}
	} else {
		parts = splitOutsideParens(strings.Join(lines, " "))
	}

	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), ".。;； ")
		if p == "" || isNone(p) {
			continue
		}
		items = append(items, p)
	}
	return items
}

func splitOutsideParens(s string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0

	for _, r := range s {
		switch r {
		case '(', '（', '[':
			depth++
		case ')', '）', ']':
			if depth > 0 {
				depth--
			}
		case ',', ';', '，', '；':
			if depth == 0 {
				parts = append(parts, cur.String())
				cur.Reset()
				continue
			}
		}
		cur.WriteRune(r)
	}
	return append(parts, cur.String())
}

func isNone(s string) bool {
	switch strings.ToLower(s) {
	case "none", "n/a", "na", "nil", "无", "暂无":
		return true
	}
	return false
}
