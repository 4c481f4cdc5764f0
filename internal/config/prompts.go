package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the instruction templates handed to the agent. Every field
// has a built-in default; a prompts.yaml file may override any subset.
type Prompts struct {
	Greeting       string `yaml:"greeting"`
	AnalystPrompt  string `yaml:"analyst_prompt"`
	SingleFile     string `yaml:"single_file"`
	MultiFile      string `yaml:"multi_file"`
	NoFile         string `yaml:"no_file"`
	DefaultAnalyze string `yaml:"default_analyze"`
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() Prompts {
	return Prompts{
		Greeting: "Welcome! I can help you analyze PDF documents and generate Excel or Word files. " +
			"Upload a PDF or ask a question to get started.",
		AnalystPrompt: "You are an expert document analyst with exceptional reading comprehension skills. " +
			"Your task is to carefully analyze the provided PDF document content and answer questions about it with precision and clarity.\n\n" +
			"INSTRUCTIONS:\n" +
			"- Read and understand the entire document content thoroughly\n" +
			"- Provide accurate, evidence-based answers using only information from the document\n" +
			"- If information is not available in the document, clearly state this\n" +
			"- Quote relevant sections when appropriate to support your answers\n" +
			"- Maintain objectivity and avoid making assumptions beyond what's written\n" +
			"- Structure your response clearly and concisely\n\n" +
			"DOCUMENT CONTENT:\n",
		SingleFile: "I have a PDF document uploaded at path: %PATH%\n\n" +
			"User request: \"%INPUT%\"\n\n" +
			"Please use the PDF analysis tool to analyze the document content and answer the user's request. " +
			"If the request involves creating documents (Excel or Word), use the appropriate generator tools.\n\n" +
			"PDF available for analysis at: %PATH%",
		MultiFile: "I have several PDF documents uploaded:\n%FILELIST%\n" +
			"User request: \"%INPUT%\"\n\n" +
			"Please use the PDF analysis tool to analyze each PDF individually and answer the user's request. " +
			"If the request involves comparing files or creating documents (Excel or Word), use the appropriate tools.",
		NoFile: "User request: \"%INPUT%\"\n\n" +
			"Please help the user with their document-related request. " +
			"Use the generator tools to create Excel or Word documents as needed.",
		DefaultAnalyze: "Please analyze this PDF file.",
	}
}

// LoadPrompts reads template overrides from a YAML file. A missing or
// malformed file is not fatal: the defaults are returned along with the
// error so the caller can log a warning and continue.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		path = "prompts.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts %s: %w", path, err)
	}
	var overrides Prompts
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return prompts, fmt.Errorf("decode prompts %s: %w", path, err)
	}
	prompts.merge(overrides)
	return prompts, nil
}

func (p *Prompts) merge(o Prompts) {
	if o.Greeting != "" {
		p.Greeting = o.Greeting
	}
	if o.AnalystPrompt != "" {
		p.AnalystPrompt = o.AnalystPrompt
	}
	if o.SingleFile != "" {
		p.SingleFile = o.SingleFile
	}
	if o.MultiFile != "" {
		p.MultiFile = o.MultiFile
	}
	if o.NoFile != "" {
		p.NoFile = o.NoFile
	}
	if o.DefaultAnalyze != "" {
		p.DefaultAnalyze = o.DefaultAnalyze
	}
}
