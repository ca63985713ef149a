package extractor

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Vocabulary extends the built-in tables without a rebuild. Example:
//
//	sites:
//	  PYT: [평택]
//	processes:
//	  PROC_PH: [노광공정]
//	  PROC_WET: [습식]
type Vocabulary struct {
	// Sites maps a 2-4 letter site code to extra names for it.
	Sites map[string][]string `yaml:"sites"`
	// Processes maps a PROC_ code to extra keywords. Keywords are matched as
	// substrings before the built-in dictionary.
	Processes map[string][]string `yaml:"processes"`
}

var (
	siteCodeRe    = regexp.MustCompile(`^[A-Z]{2,4}$`)
	processCodeRe = regexp.MustCompile(`^PROC_[A-Z0-9]+$`)
)

// LoadVocabulary reads and validates a vocabulary YAML file.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary decodes and validates vocabulary YAML.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
	}

	for code := range v.Sites {
		if !siteCodeRe.MatchString(strings.ToUpper(code)) {
			return nil, fmt.Errorf("invalid site code %q: expected 2-4 letters", code)
		}
	}
	for code, terms := range v.Processes {
		if !processCodeRe.MatchString(strings.ToUpper(code)) {
			return nil, fmt.Errorf("invalid process code %q: expected PROC_ prefix", code)
		}
		for _, t := range terms {
			if strings.TrimSpace(t) == "" {
				return nil, fmt.Errorf("empty keyword for process %s", code)
			}
		}
	}
	return &v, nil
}

// processKeywords flattens Processes into dictionary entries, longest term
// first so "노광공정" is tried before "노광".
func (v *Vocabulary) processKeywords() []keyword {
	var out []keyword
	for code, terms := range v.Processes {
		for _, t := range terms {
			out = append(out, keyword{term: strings.ToUpper(strings.TrimSpace(t)), code: strings.ToUpper(code)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].term) != len(out[j].term) {
			return len(out[i].term) > len(out[j].term)
		}
		return out[i].term < out[j].term
	})
	return out
}
