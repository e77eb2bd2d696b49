package registry

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCategory = errors.New("unknown component category")

// Category flags classify components by who is authoritative for them.
type Category uint8

const CategoryNone Category = 0

const (
	// CategoryInput marks client-authoritative input.
	CategoryInput Category = 1 << iota
	// CategoryActionHistory marks client-authoritative action lists.
	CategoryActionHistory
)

// OwnerEcho is the default set of categories never echoed back to the client
// that owns the entity.
const OwnerEcho = CategoryInput | CategoryActionHistory

func (c Category) Has(other Category) bool { return c&other != 0 }

func (c Category) String() string {
	var names []string
	if c.Has(CategoryInput) {
		names = append(names, "input")
	}
	if c.Has(CategoryActionHistory) {
		names = append(names, "action_history")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

func ParseCategory(name string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "input":
		return CategoryInput, nil
	case "action_history", "action-history":
		return CategoryActionHistory, nil
	case "none", "":
		return CategoryNone, nil
	default:
		return CategoryNone, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
}

// ParseCategories ORs together a list of category names.
func ParseCategories(names []string) (Category, error) {
	var out Category
	for _, n := range names {
		c, err := ParseCategory(n)
		if err != nil {
			return CategoryNone, err
		}
		out |= c
	}
	return out, nil
}
