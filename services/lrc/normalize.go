package lrc

import (
	"regexp"
	"strings"
)

// Credit lines such as "[00:05.00]Composed by：xxx" (full-width colon)
var bannedRegex = regexp.MustCompile(`^\[\d{1,3}:\d{2}(?:[\.:]\d{1,3})?\].+：.+`)

const (
	// PureMusicText is the placeholder some Chinese sources ship for instrumental tracks
	PureMusicText = "纯音乐，请欣赏"

	// InstrumentalText is the replacement text for pure music
	InstrumentalText = "[Instrumental Only]"

	// MaxHeadTailLines is the number of lines to scan from head/tail for credit lines
	MaxHeadTailLines = 30
)

// Normalize cleans LRC content before parsing. It drops credit lines found in
// the first and last MaxHeadTailLines timed lines, and collapses pure-music
// placeholders into a single instrumental line.
func Normalize(content string) string {
	content = strings.ReplaceAll(content, "&apos;", "'")

	if strings.Contains(content, PureMusicText) {
		return "[00:00.00]" + InstrumentalText
	}

	var accepted []string
	var header []string
	for _, rawLine := range strings.Split(content, "\n") {
		rawLine = strings.TrimSpace(rawLine)
		if rawLine == "" {
			continue
		}
		if metadataRegex.MatchString(rawLine) {
			header = append(header, rawLine)
			continue
		}
		if loc := lrcTimeRegex.FindStringIndex(rawLine); loc != nil && loc[0] == 0 {
			accepted = append(accepted, rawLine)
		}
	}

	if len(accepted) == 0 {
		return content
	}

	// Head: drop everything up to and including the last credit line near the top
	headCut := 0
	headLimit := MaxHeadTailLines
	if headLimit > len(accepted) {
		headLimit = len(accepted)
	}
	for i := headLimit - 1; i >= 0; i-- {
		if bannedRegex.MatchString(accepted[i]) {
			headCut = i + 1
			break
		}
	}

	// Tail: drop from the first credit line found scanning upwards to the end
	tailCut := 0
	for i := 0; i < MaxHeadTailLines && i < len(accepted); i++ {
		idx := len(accepted) - 1 - i
		if idx < headCut {
			break
		}
		if bannedRegex.MatchString(accepted[idx]) {
			tailCut = i + 1
			break
		}
	}

	end := len(accepted) - tailCut
	if end < headCut {
		end = headCut
	}

	return strings.Join(append(header, accepted[headCut:end]...), "\n")
}

// StripMetadata removes metadata tags from LRC content, keeping only timed lines
func StripMetadata(content string) string {
	var clean []string
	for _, rawLine := range strings.Split(content, "\n") {
		rawLine = strings.TrimSpace(rawLine)
		if rawLine == "" || metadataRegex.MatchString(rawLine) {
			continue
		}
		if lrcTimeRegex.MatchString(rawLine) {
			clean = append(clean, rawLine)
		}
	}

	return strings.Join(clean, "\n")
}

// DetectLanguage tries to detect language from LRC metadata or content
func DetectLanguage(metadata map[string]string, content string) string {
	if lang, ok := metadata["language"]; ok && lang != "" {
		return NormalizeLanguageCode(lang)
	}

	for _, r := range content {
		switch {
		case r >= '\u3040' && r <= '\u30ff': // Hiragana, Katakana
			return "ja"
		case r >= '\uac00' && r <= '\ud7af':
			return "ko"
		}
	}
	for _, r := range content {
		if r >= '\u4e00' && r <= '\u9fff' {
			return "zh"
		}
		if r >= '\u0600' && r <= '\u06ff' {
			return "ar"
		}
		if r >= '\u0590' && r <= '\u05ff' {
			return "he"
		}
	}

	return "en" // Default to English
}

// NormalizeLanguageCode normalizes language names to ISO codes
func NormalizeLanguageCode(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	switch lang {
	case "英语", "english", "eng":
		return "en"
	case "中文", "chinese", "chi", "普通话", "国语", "粤语":
		return "zh"
	case "日语", "japanese", "jpn":
		return "ja"
	case "韩语", "korean", "kor":
		return "ko"
	case "西班牙语", "spanish", "spa":
		return "es"
	case "法语", "french", "fra":
		return "fr"
	case "德语", "german", "ger":
		return "de"
	default:
		if len(lang) <= 3 {
			return lang
		}
		return "en"
	}
}
