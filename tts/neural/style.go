package neural

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Style is a voice style: the timbre and duration conditioning tensors.
type Style struct {
	Name string
	TTL  *Tensor
	DP   *Tensor
}

type rawTensor struct {
	Dims []int64         `json:"dims"`
	Data json.RawMessage `json:"data"`
}

type rawStyle struct {
	TTL rawTensor `json:"style_ttl"`
	DP  rawTensor `json:"style_dp"`
}

// LoadStyle reads a voice style JSON file. The data arrays may be flat or
// nested to any depth.
func LoadStyle(path string) (*Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style: %w", err)
	}

	var raw rawStyle
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse style: %w", err)
	}

	ttl, err := raw.TTL.tensor()
	if err != nil {
		return nil, fmt.Errorf("style_ttl: %w", err)
	}
	dp, err := raw.DP.tensor()
	if err != nil {
		return nil, fmt.Errorf("style_dp: %w", err)
	}

	return &Style{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		TTL:  ttl,
		DP:   dp,
	}, nil
}

func (r rawTensor) tensor() (*Tensor, error) {
	if len(r.Dims) == 0 {
		return nil, fmt.Errorf("missing dims")
	}
	var nested interface{}
	if err := json.Unmarshal(r.Data, &nested); err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	var flat []float32
	if err := flatten(nested, &flat); err != nil {
		return nil, err
	}
	return FloatTensor(flat, r.Dims...)
}

func flatten(v interface{}, out *[]float32) error {
	switch x := v.(type) {
	case float64:
		*out = append(*out, float32(x))
	case []interface{}:
		for _, e := range x {
			if err := flatten(e, out); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unexpected %T in tensor data", v)
	}
	return nil
}

// ListStyles returns the style names found in a model's voice_styles
// directory, sorted.
func ListStyles(modelDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(modelDir, StylesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// StylePath returns where the named style lives inside modelDir.
func StylePath(modelDir, name string) string {
	return filepath.Join(modelDir, StylesDir, name+".json")
}
