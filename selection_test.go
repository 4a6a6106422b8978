package detection

import (
	"testing"

	"gopkg.in/yaml.v2"
)

func compileSelection(t *testing.T, raw string) *Selection {
	t.Helper()
	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}
	sel, err := NewSelection("selection", doc["selection"], false)
	if err != nil {
		t.Fatal(err)
	}
	return sel
}

func TestSelectionFieldMap(t *testing.T) {
	sel := compileSelection(t, `
selection:
  Image|endswith: '\reg.exe'
  CommandLine|contains: 'save'
`)
	// all fields of a map have to match
	if !sel.Match(DynamicMap{
		"Image":       `C:\Windows\System32\reg.exe`,
		"CommandLine": `reg save hklm\sam sam.hive`,
	}) {
		t.Fatal("full field map did not match")
	}
	if sel.Match(DynamicMap{
		"Image":       `C:\Windows\System32\reg.exe`,
		"CommandLine": `reg query hklm`,
	}) {
		t.Fatal("partial field map matched")
	}
	// absent field is a non-match, not an error
	if sel.Match(DynamicMap{"Image": `C:\Windows\System32\reg.exe`}) {
		t.Fatal("absent field matched")
	}
	if sel.Match(DynamicMap{}) {
		t.Fatal("empty event matched")
	}
}

func TestSelectionBlockList(t *testing.T) {
	sel := compileSelection(t, `
selection:
- EventID: 7045
  ServiceName|contains: 'psexec'
- EventID: 4697
`)
	// block one
	if !sel.Match(DynamicMap{
		"EventID":     7045,
		"ServiceName": "PSEXESVC psexec clone",
	}) {
		t.Fatal("first block did not match")
	}
	// block two needs nothing but the id
	if !sel.Match(DynamicMap{"EventID": 4697}) {
		t.Fatal("second block did not match")
	}
	// fields crossing blocks satisfy neither
	if sel.Match(DynamicMap{
		"EventID":     7040,
		"ServiceName": "PSEXESVC psexec clone",
	}) {
		t.Fatal("cross-block event matched")
	}
}

func TestSelectionValueList(t *testing.T) {
	sel := compileSelection(t, `
selection:
  DestinationPort:
  - 4444
  - 1337
`)
	if !sel.Match(DynamicMap{"DestinationPort": float64(4444)}) {
		t.Fatal("json float did not match numeric rule value")
	}
	if !sel.Match(DynamicMap{"DestinationPort": 1337}) {
		t.Fatal("int did not match")
	}
	if sel.Match(DynamicMap{"DestinationPort": 443}) {
		t.Fatal("unlisted port matched")
	}
}

func TestSelectionEventValueShapes(t *testing.T) {
	sel := compileSelection(t, `
selection:
  Hashes|contains: 'IMPHASH='
`)
	// multi-valued event fields match when any element matches
	if !sel.Match(DynamicMap{
		"Hashes": []interface{}{"MD5=0987", "IMPHASH=ABCD"},
	}) {
		t.Fatal("list element did not match")
	}
	if !sel.Match(DynamicMap{
		"Hashes": []string{"MD5=0987", "IMPHASH=ABCD"},
	}) {
		t.Fatal("string slice element did not match")
	}
	if sel.Match(DynamicMap{
		"Hashes": []interface{}{"MD5=0987", "SHA1=FFFF"},
	}) {
		t.Fatal("non-matching list matched")
	}
	// structured values cannot be text matched
	if sel.Match(DynamicMap{
		"Hashes": map[string]interface{}{"IMPHASH=": "x"},
	}) {
		t.Fatal("map value matched a text pattern")
	}
}

func TestSelectionCaseSensitive(t *testing.T) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(`
selection:
  Image|endswith: '\TiWorker.exe'
`), &doc); err != nil {
		t.Fatal(err)
	}
	insensitive, err := NewSelection("selection", doc["selection"], false)
	if err != nil {
		t.Fatal(err)
	}
	sensitive, err := NewSelection("selection", doc["selection"], true)
	if err != nil {
		t.Fatal(err)
	}
	event := DynamicMap{"Image": `C:\Windows\WinSxS\amd64\tiworker.exe`}
	if !insensitive.Match(event) {
		t.Fatal("default matching should fold case")
	}
	if sensitive.Match(event) {
		t.Fatal("case sensitive matching should not fold case")
	}
}

func TestSelectionInvalidShapes(t *testing.T) {
	invalid := []string{
		`
selection: "just a string"
`,
		`
selection:
- 'list'
- 'of'
- 'scalars'
`,
		`
selection:
  Image: []
`,
		`
selection:
  Image:
`,
	}
	for i, raw := range invalid {
		var doc map[string]interface{}
		if err := yaml.Unmarshal([]byte(raw), &doc); err != nil {
			t.Fatalf("invalid shape case %d yaml error %s", i, err)
		}
		if _, err := NewSelection("selection", doc["selection"], false); err == nil {
			t.Fatalf("invalid shape case %d compiled without error", i)
		}
	}
}
