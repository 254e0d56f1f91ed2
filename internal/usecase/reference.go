package usecase

import (
	"regexp"
	"strconv"

	"docchat/internal/domain/model"
)

// referencePattern matches the literal marker "文件" followed by a decimal
// short id. It is not a general reference syntax.
var referencePattern = regexp.MustCompile(model.DisplayPrefix + `([0-9]+)`)

// ParseReferences returns the short ids referenced in text, left to right,
// including repeats. Ids that overflow int are dropped.
func ParseReferences(text string) []int {
	matches := referencePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	ids := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}
	return ids
}

// ResolveReferences maps the references in text to files currently attached
// to c, in order of first appearance. Unknown or removed ids are skipped and
// each file appears at most once.
func ResolveReferences(text string, c *model.Conversation) []*model.FileRecord {
	ids := ParseReferences(text)
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	var out []*model.FileRecord
	for _, id := range ids {
		f, ok := c.FileByShortID(id)
		if !ok {
			continue
		}
		if _, dup := seen[f.ID]; dup {
			continue
		}
		seen[f.ID] = struct{}{}
		out = append(out, f)
	}
	return out
}
