package chat

import (
	"strings"

	"github.com/AlexandrLebegue/thesis-llm/internal/config"
	"github.com/AlexandrLebegue/thesis-llm/internal/models"
)

// comparisonKeywords trigger a single combined run over every attached
// document instead of one run per file.
var comparisonKeywords = []string{"compare", "comparison", "difference", "versus"}

// agentRun is one agent invocation planned for a turn. Header is prepended
// to the run's answer when a turn fans out over several files.
type agentRun struct {
	header      string
	instruction string
}

// isComparisonRequest reports whether the user text asks for a cross-file
// comparison. "vs" is matched as a whole word only; the longer keywords
// match as substrings.
func isComparisonRequest(input string) bool {
	lower := strings.ToLower(input)
	for _, kw := range comparisonKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, word := range strings.Fields(lower) {
		if strings.Trim(word, ".,!?;:") == "vs" {
			return true
		}
	}
	return false
}

// planRuns turns one user message into the agent invocations for the turn:
// no file, single file, combined comparison, or one run per file. Empty
// user text with files falls back to the default analyze instruction.
func planRuns(p config.Prompts, input string, uploads []*models.Upload) []agentRun {
	input = strings.TrimSpace(input)

	if len(uploads) == 0 {
		return []agentRun{{instruction: fillTemplate(p.NoFile, "", input, "")}}
	}

	if len(uploads) == 1 {
		if input == "" {
			input = p.DefaultAnalyze
		}
		return []agentRun{{instruction: fillTemplate(p.SingleFile, uploads[0].FileName, input, "")}}
	}

	if isComparisonRequest(input) {
		var list strings.Builder
		for _, u := range uploads {
			list.WriteString("- ")
			list.WriteString(u.FileName)
			list.WriteString("\n")
		}
		return []agentRun{{instruction: fillTemplate(p.MultiFile, "", input, list.String())}}
	}

	if input == "" {
		input = p.DefaultAnalyze
	}
	runs := make([]agentRun, 0, len(uploads))
	for _, u := range uploads {
		runs = append(runs, agentRun{
			header:      "## " + u.FileName,
			instruction: fillTemplate(p.SingleFile, u.FileName, input, ""),
		})
	}
	return runs
}

// fillTemplate substitutes the %PATH%, %INPUT% and %FILELIST% placeholders.
func fillTemplate(tmpl, path, input, fileList string) string {
	r := strings.NewReplacer(
		"%PATH%", path,
		"%INPUT%", input,
		"%FILELIST%", fileList,
	)
	return r.Replace(tmpl)
}

// joinAnswers assembles per-run answers into one assistant message. Multiple
// runs are separated with a horizontal rule and labeled per file.
func joinAnswers(runs []agentRun, answers []string) string {
	if len(answers) == 1 && runs[0].header == "" {
		return answers[0]
	}
	parts := make([]string, 0, len(answers))
	for i, answer := range answers {
		if runs[i].header != "" {
			parts = append(parts, runs[i].header+"\n\n"+answer)
		} else {
			parts = append(parts, answer)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}
