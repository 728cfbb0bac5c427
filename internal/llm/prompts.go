package llm

import (
	_ "embed"
	"strings"
)

var (
	//go:embed prompts/writer_resume.txt
	writerResumePrompt string
	//go:embed prompts/writer_proposal.txt
	writerProposalPrompt string
	//go:embed prompts/reviewer.txt
	reviewerPrompt string
	//go:embed prompts/humanizer.txt
	humanizerPrompt string
	//go:embed prompts/section_rewrite.txt
	sectionRewritePrompt string
)

// Prompt names.
const (
	PromptWriterResume   = "writer_resume"
	PromptWriterProposal = "writer_proposal"
	PromptReviewer       = "reviewer"
	PromptHumanizer      = "humanizer"
	PromptSectionRewrite = "section_rewrite"
)

// PromptTemplate returns the prompt template text and whether the name was recognized.
func PromptTemplate(name string) (string, bool) {
	switch name {
	case PromptWriterResume:
		return writerResumePrompt, true
	case PromptWriterProposal:
		return writerProposalPrompt, true
	case PromptReviewer:
		return reviewerPrompt, true
	case PromptHumanizer:
		return humanizerPrompt, true
	case PromptSectionRewrite:
		return sectionRewritePrompt, true
	default:
		return "", false
	}
}

// Fill replaces {{KEY}} placeholders in tmpl. Empty values render as "(none)".
// Substituted text is never rescanned, so document content containing braces
// passes through untouched.
func Fill(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		if strings.TrimSpace(v) == "" {
			v = "(none)"
		}
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
