package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
)

// Flag is one entry of flags.json.
type Flag struct {
	Code  string `json:"code"`
	Image string `json:"image"`
}

// FlagTable maps country codes to flag image URLs. It is immutable after
// construction and safe for concurrent use.
type FlagTable struct {
	images map[string]string
	flags  []Flag
}

// NewFlagTable indexes flags by code. The first entry wins on duplicates.
func NewFlagTable(flags []Flag) *FlagTable {
	t := &FlagTable{
		images: make(map[string]string, len(flags)),
		flags:  make([]Flag, 0, len(flags)),
	}
	for _, f := range flags {
		code := strings.TrimSpace(f.Code)
		if code == "" {
			continue
		}
		if _, dup := t.images[code]; dup {
			continue
		}
		t.images[code] = f.Image
		t.flags = append(t.flags, Flag{Code: code, Image: f.Image})
	}
	return t
}

// ParseFlags reads a flags.json document. Comments and trailing commas are
// tolerated so the file can be annotated by hand.
func ParseFlags(data []byte) (*FlagTable, error) {
	var flags []Flag
	if err := json.Unmarshal(jsonc.ToJSON(data), &flags); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}
	return NewFlagTable(flags), nil
}

// LoadFlags reads and parses the flag table at path.
func LoadFlags(path string) (*FlagTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	t, err := ParseFlags(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Lookup returns the flag image for code, or "" if the code is unknown.
func (t *FlagTable) Lookup(code string) string {
	if t == nil {
		return ""
	}
	return t.images[strings.TrimSpace(code)]
}

// Len returns the number of distinct codes.
func (t *FlagTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.flags)
}

// All returns the flags in file order.
func (t *FlagTable) All() []Flag {
	if t == nil {
		return nil
	}
	out := make([]Flag, len(t.flags))
	copy(out, t.flags)
	return out
}
