// Package prompts loads the agent instruction texts.
//
// system.txt is the tiny core identity prompt; it is re-processed on every
// turn, so it stays small. skills/*.txt describe individual capabilities
// and are injected into the chat context once at session start.
package prompts

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed system.txt onboarding.txt skills/*.txt
var files embed.FS

// languageNames maps supported language codes to the name used inside
// prompts. Unknown codes fall back to Dutch.
var languageNames = map[string]string{
	"nl": "Dutch",
	"en": "English",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"tr": "Turkish",
}

// LanguageName resolves a language code to its prompt name.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return "Dutch"
}

// SystemPrompt returns the companion core prompt with user substitutions.
func SystemPrompt(userName, language string) string {
	raw, err := files.ReadFile("system.txt")
	if err != nil {
		panic(err) // embedded asset, only fails on a broken build
	}
	text := strings.TrimSpace(string(raw))
	text = strings.ReplaceAll(text, "{user_name}", userName)
	return strings.ReplaceAll(text, "{language}", LanguageName(language))
}

// OnboardingPrompt returns the family-caller prompt parameterized by the
// primary user's name, the caller's name, and the caller's language code.
func OnboardingPrompt(elderlyName, callerName, languageCode string) string {
	raw, err := files.ReadFile("onboarding.txt")
	if err != nil {
		panic(err)
	}
	callerName = strings.TrimSpace(callerName)
	if callerName == "" {
		callerName = "caller"
	}
	text := strings.TrimSpace(string(raw))
	text = strings.ReplaceAll(text, "{elderly_name}", elderlyName)
	text = strings.ReplaceAll(text, "{caller_name}", callerName)
	return strings.ReplaceAll(text, "{language}", LanguageName(languageCode))
}

// AllSkills combines every skill file into one context block, sorted by
// file name so the order is stable.
func AllSkills() string {
	names := ListSkills()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		skill, err := Skill(name)
		if err != nil {
			continue
		}
		parts = append(parts, skill)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// Skill loads a single skill by name (without the .txt extension).
func Skill(name string) (string, error) {
	raw, err := files.ReadFile("skills/" + name + ".txt")
	if err != nil {
		return "", fmt.Errorf("skill not found: %s", name)
	}
	return strings.TrimSpace(string(raw)), nil
}

// ListSkills returns the available skill names, sorted.
func ListSkills() []string {
	entries, err := files.ReadDir("skills")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, strings.TrimSuffix(e.Name(), ".txt"))
		}
	}
	sort.Strings(names)
	return names
}
