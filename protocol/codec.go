package protocol

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/taskmesh/core"
)

// blockSpec couples a wire tag with its decoder and required fields.
type blockSpec struct {
	required []string
	decode   func(body []byte) (core.Action, error)
}

var openRe = regexp.MustCompile(`(?m)^<([a-z_]+)>[ \t]*\r?$`)

// specs maps every known top-level tag to its decoding rules. Required
// fields are checked for presence before the typed unmarshal so that a
// missing field is reported as such rather than as a zero value.
var specs = map[string]blockSpec{
	string(core.VerbTaskCreate): {
		// max_turns is optional; the control loop applies its configured
		// default when the field is omitted.
		required: []string{"agent_type", "title", "description"},
		decode:   func(b []byte) (core.Action, error) { var a core.TaskCreateAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbLaunchParallel): {
		required: []string{"task_ids"},
		decode:   func(b []byte) (core.Action, error) { var a core.LaunchParallelAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbAddContext): {
		required: []string{"id", "content"},
		decode:   func(b []byte) (core.Action, error) { var a core.AddContextAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbFinish): {
		required: []string{"message"},
		decode:   func(b []byte) (core.Action, error) { var a core.FinishAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbReport): {
		required: []string{"contexts", "comments"},
		decode:   func(b []byte) (core.Action, error) { var a core.ReportAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbRead): {
		required: []string{"file_path"},
		decode:   func(b []byte) (core.Action, error) { var a core.ReadAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbWrite): {
		required: []string{"file_path", "content"},
		decode:   func(b []byte) (core.Action, error) { var a core.WriteAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbEdit): {
		required: []string{"file_path", "old_string", "new_string"},
		decode:   func(b []byte) (core.Action, error) { var a core.EditAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbMultiEdit): {
		required: []string{"file_path", "edits"},
		decode:   func(b []byte) (core.Action, error) { var a core.MultiEditAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbGrep): {
		required: []string{"pattern"},
		decode:   func(b []byte) (core.Action, error) { var a core.GrepAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbGlob): {
		required: []string{"pattern"},
		decode:   func(b []byte) (core.Action, error) { var a core.GlobAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbFileMetadata): {
		required: []string{"file_paths"},
		decode:   func(b []byte) (core.Action, error) { var a core.FileMetadataAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbBash): {
		required: []string{"cmd"},
		decode:   func(b []byte) (core.Action, error) { var a core.BashAction; return a, yaml.Unmarshal(b, &a) },
	},
	string(core.VerbAddNote): {
		required: []string{"content"},
		decode:   func(b []byte) (core.Action, error) { var a core.AddNoteAction; return a, yaml.Unmarshal(b, &a) },
	},
}

// Decode parses raw strategy output into exactly one action.
//
// Rules:
//   - no block at all → core.ReasoningAction carrying the raw text
//   - first opening tag decides the block; an unknown tag is rejected as
//     UnknownAction
//   - the block body runs to the last matching closing tag, so bodies may
//     contain angle brackets verbatim
//   - a second block after the first is rejected as MultipleActions
//   - missing required fields are rejected as MissingField; YAML type or
//     syntax errors as MalformedBlock
func Decode(raw string) (core.Action, error) {
	opens := openRe.FindAllStringSubmatchIndex(raw, -1)
	if len(opens) == 0 {
		return core.ReasoningAction{Text: strings.TrimSpace(raw)}, nil
	}
	loc := opens[0]
	tag := raw[loc[2]:loc[3]]

	spec, ok := specs[tag]
	if !ok {
		return nil, &core.ProtocolError{Kind: core.UnknownAction, Tag: tag}
	}
	if len(opens) > 1 {
		return nil, &core.ProtocolError{Kind: core.MultipleActions, Tag: tag}
	}

	closeRe := regexp.MustCompile(`(?m)^</` + tag + `>[ \t]*\r?$`)
	closes := closeRe.FindAllStringIndex(raw, -1)
	if len(closes) == 0 || closes[len(closes)-1][0] < loc[1] {
		return nil, &core.ProtocolError{Kind: core.MalformedBlock, Tag: tag, Cause: fmt.Errorf("missing closing tag </%s>", tag)}
	}
	body := raw[loc[1]:closes[len(closes)-1][0]]

	if err := checkRequired(tag, spec.required, []byte(body)); err != nil {
		return nil, err
	}

	action, err := spec.decode([]byte(body))
	if err != nil {
		return nil, &core.ProtocolError{Kind: core.MalformedBlock, Tag: tag, Cause: err}
	}
	return action, nil
}

// checkRequired verifies field presence without interpreting values, so an
// explicitly empty list still counts as present.
func checkRequired(tag string, required []string, body []byte) error {
	var fields map[string]any
	if err := yaml.Unmarshal(body, &fields); err != nil {
		return &core.ProtocolError{Kind: core.MalformedBlock, Tag: tag, Cause: err}
	}
	for _, f := range required {
		if _, ok := fields[f]; !ok {
			return &core.ProtocolError{Kind: core.MissingField, Tag: tag, Field: f}
		}
	}
	return nil
}

// Encode renders an action back to its wire form. Reasoning-only actions
// encode to their raw text; every other variant becomes a tagged block with
// a YAML body. Encode(Decode(x)) is stable for well-formed input.
func Encode(action core.Action) (string, error) {
	if r, ok := action.(core.ReasoningAction); ok {
		return r.Text, nil
	}

	tag := string(action.Verb())
	if _, ok := specs[tag]; !ok {
		return "", fmt.Errorf("encode: no wire form for verb %q", tag)
	}

	body, err := yaml.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", tag, err)
	}

	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(tag)
	sb.WriteString(">\n")
	sb.Write(body)
	sb.WriteString("</")
	sb.WriteString(tag)
	sb.WriteString(">")
	return sb.String(), nil
}
