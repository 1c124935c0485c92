package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/buildherd/buildherd/internal/repository"
	"github.com/buildherd/buildherd/pkg/github"
	"github.com/buildherd/buildherd/pkg/logger"
	"github.com/buildherd/buildherd/pkg/types"
)

// DirectiveKey starts an instruction block in a comment
const DirectiveKey = "buildherd"

// Instruction names understood by the built-in extensions
const (
	InstructionRebuild = "rebuild"
	InstructionSkip    = "skip"
)

// ParseInstructions extracts the instructions of collaborator comments,
// ordered by date. Comments by others are ignored; a directive that does
// not parse is logged and dropped.
func ParseInstructions(comments []github.CommentData, repo *repository.Repository, log logger.Logger) []types.Instruction {
	if log == nil {
		log = logger.Nop()
	}
	var instructions []types.Instruction
	for _, comment := range comments {
		if !repo.IsCollaborator(comment.User.Login) {
			continue
		}
		parsed, err := parseComment(comment.Body)
		if err != nil {
			log.Warn("Ignoring malformed instruction",
				logger.WithField("author", comment.User.Login),
				logger.WithError(err))
			continue
		}
		date := comment.UpdatedAt
		if date.IsZero() {
			date = comment.CreatedAt
		}
		for _, instr := range parsed {
			instr.Author = comment.User.Login
			instr.Date = date
			instructions = append(instructions, instr)
		}
	}

	sort.SliceStable(instructions, func(i, j int) bool {
		return instructions[i].Date.Before(instructions[j].Date)
	})
	return instructions
}

// parseComment reads the YAML block starting at a `buildherd:` line.
// Code fences around it are ignored.
func parseComment(body string) ([]types.Instruction, error) {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), DirectiveKey+":") {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, nil
	}

	var block []string
	for _, line := range lines[start:] {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			break
		}
		block = append(block, line)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal([]byte(strings.TrimLeft(strings.Join(block, "\n"), " \t")), &doc); err != nil {
		return nil, fmt.Errorf("invalid directive: %w", err)
	}
	return decodeDirective(doc[DirectiveKey])
}

// decodeDirective accepts a name, a {name: args} mapping, or a list of
// either.
func decodeDirective(value interface{}) ([]types.Instruction, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []types.Instruction{{Name: strings.TrimSpace(v)}}, nil
	case map[string]interface{}:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		instructions := make([]types.Instruction, 0, len(names))
		for _, name := range names {
			instructions = append(instructions, types.Instruction{Name: name, Args: v[name]})
		}
		return instructions, nil
	case []interface{}:
		var instructions []types.Instruction
		for _, item := range v {
			decoded, err := decodeDirective(item)
			if err != nil {
				return nil, err
			}
			instructions = append(instructions, decoded...)
		}
		return instructions, nil
	default:
		return nil, fmt.Errorf("unsupported directive %v", v)
	}
}

// stringArgs normalizes instruction arguments to a list of strings
func stringArgs(args interface{}) []string {
	switch v := args.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}
