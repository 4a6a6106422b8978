package detection

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Rule defines a raw detection rule as it appears in a YAML document
// Only meant for decoding - the engine compiles it into a Tree before use
type Rule struct {
	Author         string   `yaml:"author" json:"author"`
	Description    string   `yaml:"description" json:"description"`
	Date           string   `yaml:"date" json:"date"`
	Modified       string   `yaml:"modified" json:"modified"`
	Falsepositives []string `yaml:"falsepositives" json:"falsepositives"`
	Fields         []string `yaml:"fields" json:"fields"`
	ID             string   `yaml:"id" json:"id"`
	Level          string   `yaml:"level" json:"level"`
	Title          string   `yaml:"title" json:"title"`
	Status         string   `yaml:"status" json:"status"`
	References     []string `yaml:"references" json:"references"`

	Logsource `yaml:"logsource" json:"logsource"`
	Detection `yaml:"detection" json:"detection"`
	Tags      `yaml:"tags" json:"tags"`
}

// RuleHandle is a meta object containing all fields from raw yaml, enhanced
// with loader context such as source file path and compile options
type RuleHandle struct {
	Rule

	Path          string `json:"path"`
	Multipart     bool   `json:"multipart"`
	CaseSensitive bool   `json:"case_sensitive"`
}

// Logsource describes the telemetry stream a rule applies to
// Used for candidate pre-filtering, not for boolean match logic
type Logsource struct {
	Product    string `yaml:"product" json:"product"`
	Category   string `yaml:"category" json:"category"`
	Service    string `yaml:"service" json:"service"`
	Definition string `yaml:"definition" json:"definition"`
}

// matches reports whether an event-declared logsource satisfies the rule
// filter. Fields absent from the filter are wildcards, present fields
// require exact equality.
func (l Logsource) matches(e Logsource) bool {
	if l.Product != "" && l.Product != e.Product {
		return false
	}
	if l.Category != "" && l.Category != e.Category {
		return false
	}
	if l.Service != "" && l.Service != e.Service {
		return false
	}
	return true
}

// Detection is the rule detection map, holding named selections along with
// the condition expression that combines them
type Detection map[string]interface{}

// Extract returns only the named selections, dropping the condition key
func (d Detection) Extract() map[string]interface{} {
	tx := make(map[string]interface{})
	for k, v := range d {
		if k != "condition" {
			tx[k] = v
		}
	}
	return tx
}

// Tags is a metadata list for tying positive matches to external taxonomies,
// such as MITRE ATT&CK technique identifiers
type Tags []string

// NewRuleFileList walks the configured root directories recursively and
// returns every file with a yaml suffix, content is not inspected here
func NewRuleFileList(dirs []string) ([]string, error) {
	out := make([]string, 0)
	for _, dir := range dirs {
		if err := filepath.Walk(dir, func(
			path string,
			info os.FileInfo,
			err error,
		) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && (strings.HasSuffix(path, "yml") || strings.HasSuffix(path, "yaml")) {
				out = append(out, path)
			}
			return nil
		}); err != nil {
			return out, err
		}
	}
	return out, nil
}

// NewRuleList reads a list of rule paths and decodes them to rule handles
// With skip enabled, individual decode failures are collected and returned
// as a bulk error once all readable files have been handled
func NewRuleList(files []string, skip, caseSensitive bool) ([]RuleHandle, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("missing rule file list")
	}
	errs := make([]ErrParseYaml, 0)
	rules := make([]RuleHandle, 0)
loop:
	for i, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var r Rule
		if err := yaml.Unmarshal(data, &r); err != nil {
			if skip {
				errs = append(errs, ErrParseYaml{
					Path:  path,
					Count: i,
					Err:   err,
				})
				continue loop
			}
			return nil, &ErrParseYaml{Err: err, Path: path}
		}
		rules = append(rules, RuleHandle{
			Path:          path,
			Rule:          r,
			CaseSensitive: caseSensitive,
			Multipart: func() bool {
				return !bytes.HasPrefix(data, []byte("---")) && bytes.Contains(data, []byte("---"))
			}(),
		})
	}
	return rules, func() error {
		if len(errs) > 0 {
			return ErrBulkParseYaml{Errs: errs}
		}
		return nil
	}()
}

// Result is an object returned on positive match
type Result struct {
	Tags `json:"tags"`

	ID    string `json:"id"`
	Title string `json:"title"`
	Level Level  `json:"level"`

	// Names of selections that evaluated true during the match, ordered by
	// selection name
	MatchedSelections []string `json:"matched_selections"`
}

// Results carries one entry per rule that fired on a single event
type Results []Result
