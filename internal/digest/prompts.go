package digest

import (
	"fmt"
	"strings"
	"time"
)

// minPerCategory is advisory text sent to the model, not an enforced
// contract: the pipeline proceeds with whatever non-empty set comes back.
const minPerCategory = 10

func discoveryPrompt(now time.Time) string {
	return fmt.Sprintf(`You are a news scout. Find today's (%s) most noteworthy REAL news stories in two categories:
- "social": social news, society, public policy, notable events
- "health": health, medicine, nutrition, wellness research

Requirements:
- Return at least %d stories per category.
- Every story must come from a real, currently reachable news page. Use your web search capability. Never invent URLs.
- Prefer major outlets and primary sources.

Respond ONLY with JSON in this exact shape, no other text:
{"candidates":[{"title":"...","url":"https://...","category":"social"}]}`,
		now.Format("2006-01-02"), minPerCategory)
}

func elaborationPrompt(candidates []Candidate) string {
	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "- title: %s\n  url: %s\n  category: %s\n", c.Title, c.URL, c.Category)
	}
	return fmt.Sprintf(`You are a bilingual news editor. Below are verified news leads. For EACH lead produce one digest entry.

Leads:
%s
Per entry provide:
- "title": refined headline
- "summary_cn": 2-3 sentence Chinese summary
- "summary_en": 2-3 sentence English summary
- "source_url": the EXACT url given above for this lead. Copy it verbatim. Never substitute or invent a URL.
- "source_name": the publication's name
- "ai_score": integer 0-100 rating newsworthiness
- "ai_score_reason": one sentence explaining the score
- "tags": 2-4 short topical tags
- For "health" category entries only, also "xhs_titles": 3 catchy promotional title variants in Chinese

Respond ONLY with JSON, no other text:
{"social":[{...}],"health":[{...}]}`, b.String())
}

// Some providers reject tool attachments outright; skip the search tool for
// model families known not to support it.
var nonSearchModels = []string{"deepseek", "glm", "qwen"}

func supportsSearch(model string) bool {
	m := strings.ToLower(model)
	for _, ns := range nonSearchModels {
		if strings.Contains(m, ns) {
			return false
		}
	}
	return true
}

var searchTools = []map[string]any{
	{"type": "web_search"},
}
